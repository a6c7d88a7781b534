package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/llm"
)

type stubStreamClient struct {
	fragments []string
	failAfter int
	err       error

	requests  []llm.Request
	delivered int
	stopErr   error
}

var _ llm.StreamClient = (*stubStreamClient)(nil)

func (s *stubStreamClient) Generate(_ context.Context, req llm.Request) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	return strings.Join(s.fragments, ""), nil
}

func (s *stubStreamClient) GenerateStream(ctx context.Context, req llm.Request, fn func(string) error) error {
	s.requests = append(s.requests, req)
	for i, fragment := range s.fragments {
		if s.err != nil && i == s.failAfter {
			return s.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.delivered++
		if err := fn(fragment); err != nil {
			s.stopErr = err
			return err
		}
	}
	if s.err != nil && s.failAfter >= len(s.fragments) {
		return s.err
	}
	return nil
}

func newTestGenerator(client llm.StreamClient) *Generator {
	logger, _ := test.NewNullLogger()
	return NewGenerator(client, logger)
}

func drain(seq func(func(domain.Event) bool)) []domain.Event {
	var events []domain.Event
	for event := range seq {
		events = append(events, event)
	}
	return events
}

func TestStreamDeltasThenComplete(t *testing.T) {
	client := &stubStreamClient{fragments: []string{"Revenue grew [1] ", "", "due to expansion [2]."}}
	chunks := testChunks(2)

	events := drain(newTestGenerator(client).Stream(context.Background(), nil, "gpt-4o", chunks))

	require.Len(t, events, 3)
	assert.Equal(t, domain.ContentDeltaEvent{Text: "Revenue grew [1] "}, events[0])
	assert.Equal(t, domain.ContentDeltaEvent{Text: "due to expansion [2]."}, events[1])

	done, ok := events[2].(domain.MessageCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "Revenue grew [1] due to expansion [2].", done.FullText)
	require.Len(t, done.References, 2)
	assert.Equal(t, 1, done.References[0].ID)
	assert.Equal(t, chunks[0].ID, done.References[0].ChunkID)
	assert.Equal(t, 2, done.References[1].ID)
	assert.Equal(t, chunks[1].ID, done.References[1].ChunkID)
	assert.Equal(t, "gpt-4o", client.requests[0].Model)
}

func TestStreamIgnoresOutOfRangeCitations(t *testing.T) {
	client := &stubStreamClient{fragments: []string{"See [5] and [0]."}}

	events := drain(newTestGenerator(client).Stream(context.Background(), nil, "", testChunks(2)))

	done := events[len(events)-1].(domain.MessageCompleteEvent)
	assert.Empty(t, done.References)
	assert.NotNil(t, done.References)
}

func TestStreamFailureYieldsSingleError(t *testing.T) {
	client := &stubStreamClient{fragments: []string{"partial ", "never"}, failAfter: 1, err: errors.New("connection reset")}

	events := drain(newTestGenerator(client).Stream(context.Background(), nil, "", nil))

	require.Len(t, events, 2)
	assert.IsType(t, domain.ContentDeltaEvent{}, events[0])
	failed, ok := events[1].(domain.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "generation failed: connection reset", failed.Message)
	assert.ErrorIs(t, failed.Err, domain.ErrGeneration)

	terminal := 0
	for _, event := range events {
		if domain.IsTerminal(event) {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestStreamStopsUpstreamWhenConsumerStops(t *testing.T) {
	client := &stubStreamClient{fragments: []string{"a", "b", "c", "d"}}

	var seen int
	for range newTestGenerator(client).Stream(context.Background(), nil, "", nil) {
		seen++
		if seen == 2 {
			break
		}
	}

	assert.Equal(t, 2, seen)
	assert.Equal(t, 2, client.delivered)
	assert.ErrorIs(t, client.stopErr, errStopped)
}

func TestStreamWithoutClient(t *testing.T) {
	events := drain(newTestGenerator(nil).Stream(context.Background(), nil, "", nil))

	require.Len(t, events, 1)
	assert.IsType(t, domain.ErrorEvent{}, events[0])
}

func TestStreamIsDeterministic(t *testing.T) {
	chunks := testChunks(3)
	run := func() []domain.Event {
		client := &stubStreamClient{fragments: []string{"x [3] ", "y [1] [3]"}}
		return drain(newTestGenerator(client).Stream(context.Background(), nil, "", chunks))
	}

	assert.Equal(t, run(), run())
}

func TestCompleteResolvesReferences(t *testing.T) {
	client := &stubStreamClient{fragments: []string{"Answer [1][1]"}}

	text, refs, err := newTestGenerator(client).Complete(context.Background(), nil, "m", testChunks(1))

	require.NoError(t, err)
	assert.Equal(t, "Answer [1][1]", text)
	assert.Len(t, refs, 2)
}

func TestCompleteWrapsError(t *testing.T) {
	client := &stubStreamClient{err: errors.New("quota exceeded")}

	_, _, err := newTestGenerator(client).Complete(context.Background(), nil, "m", nil)

	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, 502, domain.StatusCode(err))
}

func TestResolveReferencesPreviewAndDefaults(t *testing.T) {
	chunks := []domain.DocumentChunk{
		{ID: "long_0", Content: strings.Repeat("a", 250)},
		{ID: "short_1", Content: "short", Metadata: domain.ChunkMetadata{Source: "s.pdf", PageNumber: 4, SourceInfo: "s.pdf - Page 4"}},
	}

	refs := ResolveReferences("[1] [2] [3] [abc] [2]", chunks)

	require.Len(t, refs, 3)
	assert.Equal(t, strings.Repeat("a", 200)+"...", refs[0].Text)
	assert.Equal(t, "Unknown source", refs[0].Source)
	assert.Equal(t, "Unknown source", refs[0].SourceInfo)
	assert.Equal(t, 1, refs[0].Page)
	assert.Equal(t, domain.Reference{ID: 2, Text: "short", Source: "s.pdf", Page: 4, ChunkID: "short_1", SourceInfo: "s.pdf - Page 4"}, refs[1])
	assert.Equal(t, refs[1], refs[2])
}

func TestResolveReferencesWithoutChunks(t *testing.T) {
	assert.Empty(t, ResolveReferences("cites [1]", nil))
}
