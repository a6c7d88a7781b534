package chat

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/llm"
)

func testChunks(n int) []domain.DocumentChunk {
	chunks := make([]domain.DocumentChunk, n)
	for i := range chunks {
		chunks[i] = domain.DocumentChunk{
			ID:      "report.pdf_" + string(rune('0'+i)),
			Content: "content of chunk " + string(rune('A'+i)),
			Metadata: domain.ChunkMetadata{
				Source:     "report.pdf",
				ChunkIndex: i,
				PageNumber: i + 1,
				SourceInfo: "report.pdf - Page " + string(rune('1'+i)),
			},
		}
	}
	return chunks
}

func warnings(hook *test.Hook) []string {
	var messages []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

func TestUserTurnSingleTextCollapses(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a := NewAssembler(logger)

	msg := a.UserTurn("What is in the report?", nil, nil)

	assert.False(t, msg.IsStructured())
	assert.Equal(t, llm.RoleUser, msg.Role)
	assert.Equal(t, "What is in the report?", msg.Content)

	msg = a.UserTurn("", []domain.ContentBlock{domain.TextBlock{Text: "only block"}}, nil)
	assert.False(t, msg.IsStructured())
	assert.Equal(t, "only block", msg.Content)
}

func TestUserTurnBlockOrderAndRendering(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a := NewAssembler(logger)

	msg := a.UserTurn("Describe these", []domain.ContentBlock{
		domain.ImageBlock{URL: "data:image/png;base64,AAAA"},
		domain.AudioBlock{Transcript: "hello there"},
		domain.DocumentBlock{Filename: "report.pdf", Size: 2048},
		domain.TextBlock{Text: "trailing"},
	}, nil)

	require.True(t, msg.IsStructured())
	assert.Equal(t, []llm.Part{
		{Type: llm.PartText, Text: "Describe these"},
		{Type: llm.PartImage, ImageURL: "data:image/png;base64,AAAA"},
		{Type: llm.PartText, Text: "[Audio Transcription] hello there"},
		{Type: llm.PartText, Text: "[PDF Document] report.pdf (2.0 KB)"},
		{Type: llm.PartText, Text: "trailing"},
	}, msg.Parts)
}

func TestUserTurnDropsInvalidBlocks(t *testing.T) {
	logger, hook := test.NewNullLogger()
	a := NewAssembler(logger)

	msg := a.UserTurn("question", []domain.ContentBlock{
		domain.ImageBlock{URL: "https://example.com/cat.png"},
		domain.AudioBlock{},
		domain.UnknownBlock{RawKind: "video"},
	}, nil)

	assert.False(t, msg.IsStructured())
	assert.Equal(t, "question", msg.Content)
	assert.Len(t, warnings(hook), 3)
}

func TestUserTurnDropsBlockWithEmptyKind(t *testing.T) {
	logger, hook := test.NewNullLogger()
	a := NewAssembler(logger)

	msg := a.UserTurn("hello", []domain.ContentBlock{
		domain.ParseContentBlock("", "x", "", "", 0),
		domain.ParseContentBlock("text", "world", "", "", 0),
	}, nil)

	require.True(t, msg.IsStructured())
	assert.Equal(t, []llm.Part{
		{Type: llm.PartText, Text: "hello"},
		{Type: llm.PartText, Text: "world"},
	}, msg.Parts)
	assert.Len(t, warnings(hook), 1)
}

func TestUserTurnImageOnlyStaysStructured(t *testing.T) {
	logger, _ := test.NewNullLogger()
	msg := NewAssembler(logger).UserTurn("  ", []domain.ContentBlock{domain.ImageBlock{URL: "data:image/jpeg;base64,/9j/"}}, nil)

	require.True(t, msg.IsStructured())
	assert.Len(t, msg.Parts, 1)
	assert.Equal(t, llm.PartImage, msg.Parts[0].Type)
}

func TestUserTurnGroundingOnPlainText(t *testing.T) {
	logger, _ := test.NewNullLogger()
	chunks := testChunks(2)

	msg := NewAssembler(logger).UserTurn("Summarise", nil, chunks)

	require.False(t, msg.IsStructured())
	expected := "Summarise" +
		"\n\n=== Reference Document Content ===\n" +
		"\n[1] content of chunk A\nSource: report.pdf - Page 1\n" +
		"\n[2] content of chunk B\nSource: report.pdf - Page 2\n" +
		"\nPlease cite relevant content in your answer using formats like [1], [2], etc.\n"
	assert.Equal(t, expected, msg.Content)
}

func TestUserTurnGroundingOnStructuredTurn(t *testing.T) {
	logger, _ := test.NewNullLogger()
	chunks := testChunks(1)

	msg := NewAssembler(logger).UserTurn("Look", []domain.ContentBlock{domain.ImageBlock{URL: "data:image/png;base64,AA"}}, chunks)

	require.True(t, msg.IsStructured())
	require.Len(t, msg.Parts, 3)
	last := msg.Parts[2]
	assert.Equal(t, llm.PartText, last.Type)
	assert.Equal(t, GroundingText(chunks), last.Text)
}

func TestGroundingTextTruncatesContent(t *testing.T) {
	chunks := []domain.DocumentChunk{{ID: "a_0", Content: strings.Repeat("é", 600)}}

	text := GroundingText(chunks)

	assert.Contains(t, text, "\n[1] "+strings.Repeat("é", 500)+"\nSource: Document chunk 1\n")
	assert.NotContains(t, text, strings.Repeat("é", 501))
}

func TestHistoryTurns(t *testing.T) {
	logger, hook := test.NewNullLogger()
	a := NewAssembler(logger)

	messages := a.HistoryTurns([]domain.HistoryTurn{
		{Role: domain.RoleUser, Content: "first question"},
		{Role: domain.RoleAssistant, Content: "first answer [1]"},
		{Role: "tool", Content: "ignored"},
		{Role: domain.RoleUser, Content: "with audio", Blocks: []domain.ContentBlock{domain.AudioBlock{Transcript: "spoken"}}},
	})

	require.Len(t, messages, 3)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "first question"}, messages[0])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "first answer [1]"}, messages[1])
	assert.Equal(t, []llm.Part{
		{Type: llm.PartText, Text: "with audio"},
		{Type: llm.PartText, Text: "[Audio Transcription] spoken"},
	}, messages[2].Parts)
	assert.Len(t, warnings(hook), 1)
}

func TestConversationOrderAndGroundingScope(t *testing.T) {
	logger, _ := test.NewNullLogger()
	chunks := testChunks(1)

	messages := NewAssembler(logger).Conversation(
		[]domain.HistoryTurn{{Role: domain.RoleUser, Content: "earlier"}},
		"now",
		nil,
		chunks,
	)

	require.Len(t, messages, 3)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "=== Reference Document Content ===")
	assert.Equal(t, "earlier", messages[1].Content)
	assert.True(t, strings.HasPrefix(messages[2].Content, "now\n\n=== Reference Document Content ==="))
}
