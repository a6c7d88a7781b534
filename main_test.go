package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"os"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/rag-workbench/chat"
	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/ingestion"
)

func TestRunIngestFailureLeavesNoStagedFiles(t *testing.T) {
	tempDir := t.TempDir()
	logger, _ := test.NewNullLogger()
	svc := ingestion.NewService(ingestion.PDFExtractor{}, nil, tempDir, logger)

	var out bytes.Buffer
	err := runIngest(context.Background(), svc, []byte("garbage, not a pdf"), "garbage.pdf", false, &out, logger)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a PDF document")
	assert.Empty(t, out.String())

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged upload must be removed before the command exits")
}

type fixedEvents []domain.Event

func (f fixedEvents) Process(context.Context, []byte, string) iter.Seq[domain.Event] {
	return f.seq()
}

func (f fixedEvents) Chat(context.Context, chat.Request) (chat.Response, error) {
	return chat.Response{}, errors.New("not used")
}

func (f fixedEvents) ChatStream(context.Context, chat.Request) iter.Seq[domain.Event] {
	return f.seq()
}

func (f fixedEvents) seq() iter.Seq[domain.Event] {
	return func(yield func(domain.Event) bool) {
		for _, event := range f {
			if !yield(event) {
				return
			}
		}
	}
}

func TestRunIngestPrintsSummary(t *testing.T) {
	logger, hook := test.NewNullLogger()
	events := fixedEvents{
		domain.ProgressEvent{Step: ingestion.StepSavingFile, Message: "Saving file a.pdf...", Percent: 10},
		domain.ResultEvent{
			Chunks:  []domain.DocumentChunk{{ID: "a.pdf_0", Content: "body", Metadata: domain.ChunkMetadata{ReferenceLabel: "[1]", SourceInfo: "a.pdf - Page 1"}}},
			Summary: domain.ChunkSummary{Filename: "a.pdf", TotalChunks: 1, TotalCharacters: 4, Strategy: "text_layer"},
		},
	}

	var out bytes.Buffer
	require.NoError(t, runIngest(context.Background(), events, nil, "a.pdf", true, &out, logger))

	assert.Equal(t, "[1] a.pdf - Page 1\nbody\n\na.pdf: 1 chunks, 4 characters (text_layer)\n", out.String())
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, 10, hook.LastEntry().Data["progress"])
}

func TestRunChatReturnsStreamError(t *testing.T) {
	events := fixedEvents{
		domain.ContentDeltaEvent{Text: "partial"},
		domain.NewErrorEvent(&domain.GenerationError{Err: errors.New("connection reset")}),
	}

	var out bytes.Buffer
	err := runChat(context.Background(), events, chat.Request{Content: "q"}, &out)

	require.Error(t, err)
	assert.Equal(t, "generation failed: connection reset", err.Error())
	assert.Equal(t, "partial\n", out.String())
}

func TestRunChatListsReferences(t *testing.T) {
	events := fixedEvents{
		domain.ContentDeltaEvent{Text: "Revenue grew [1]."},
		domain.MessageCompleteEvent{
			FullText:   "Revenue grew [1].",
			References: []domain.Reference{{ID: 1, SourceInfo: "report.pdf - Page 2"}},
		},
	}

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), events, chat.Request{Content: "q"}, &out))

	assert.Equal(t, "Revenue grew [1].\n\nReferences:\n[1] report.pdf - Page 2\n", out.String())
}
