package chat

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/llm"
	"github.com/fabfab/rag-workbench/logging"
)

const groundingPreviewLength = 500

const systemPrompt = `You are a professional multimodal RAG assistant with the following capabilities:
1. Document understanding and analysis
2. Image content recognition and analysis (OCR, object detection, scene understanding)
3. Audio transcription and analysis
4. Knowledge retrieval and Q&A

Important guidelines:
- When users upload images and ask questions, combine image content with the user's specific question in your answer
- Carefully analyze all visible information in images: text, charts, objects, scenes, etc.
- Focus your analysis on the parts of the image relevant to the user's question
- If the image contains text, accurately recognize and cite it in your response
- If a user uploads an image without a question, provide a comprehensive analysis of the image

Citation format requirements (important):
- When answering based on provided reference document content, you must add citation markers after relevant information in the format [1], [2], etc.
- Citation markers should immediately follow the relevant content, e.g.: "This is important information[1]"
- Use corresponding citation numbers for each different document chunk
- If the user message contains a "=== Reference Document Content ===" section, you must use that content to answer questions and add citations
- Only use superscript citations in the main text, do not list "References" at the end

Please answer in a professional, accurate, and friendly manner, and strictly follow the citation format. When reference documents are available, prioritize using document content in your answers.`

// Assembler converts client turns and content blocks into model messages.
type Assembler struct {
	logger logrus.FieldLogger
}

func NewAssembler(logger logrus.FieldLogger) *Assembler {
	return &Assembler{logger: logging.OrDefault(logger)}
}

func (a *Assembler) SystemTurn() llm.Message {
	return llm.Message{Role: llm.RoleSystem, Content: systemPrompt}
}

// UserTurn builds the current user message. When chunks are supplied the
// grounding block is appended to it.
func (a *Assembler) UserTurn(text string, blocks []domain.ContentBlock, chunks []domain.DocumentChunk) llm.Message {
	msg := a.userMessage(text, blocks)
	if len(chunks) == 0 {
		return msg
	}

	grounding := GroundingText(chunks)
	if msg.IsStructured() {
		msg.Parts = append(msg.Parts, llm.Part{Type: llm.PartText, Text: grounding})
	} else {
		msg.Content += grounding
	}
	a.logger.WithField("chunks", len(chunks)).Debug("grounding attached to user turn")
	return msg
}

// HistoryTurns converts prior turns. User turns follow the same block rules
// as the current turn but are never grounded; other roles are skipped.
func (a *Assembler) HistoryTurns(history []domain.HistoryTurn) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for i, turn := range history {
		switch turn.Role {
		case domain.RoleUser:
			messages = append(messages, a.userMessage(turn.Content, turn.Blocks))
		case domain.RoleAssistant:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: turn.Content})
		default:
			a.logger.WithFields(logrus.Fields{"index": i, "role": turn.Role}).Warn("skipping history turn with unsupported role")
		}
	}
	return messages
}

// Conversation returns the system turn, the history and the grounded
// current turn, in that order.
func (a *Assembler) Conversation(history []domain.HistoryTurn, text string, blocks []domain.ContentBlock, chunks []domain.DocumentChunk) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, a.SystemTurn())
	messages = append(messages, a.HistoryTurns(history)...)
	messages = append(messages, a.UserTurn(text, blocks, chunks))
	return messages
}

func (a *Assembler) userMessage(text string, blocks []domain.ContentBlock) llm.Message {
	parts := make([]llm.Part, 0, len(blocks)+1)
	if strings.TrimSpace(text) != "" {
		parts = append(parts, llm.Part{Type: llm.PartText, Text: text})
	}

	for i, block := range blocks {
		log := a.logger.WithFields(logrus.Fields{"block": i, "kind": block.Kind()})
		switch b := block.(type) {
		case domain.TextBlock:
			parts = append(parts, llm.Part{Type: llm.PartText, Text: b.Text})
		case domain.ImageBlock:
			if !strings.HasPrefix(b.URL, "data:image") {
				log.WithField("prefix", truncate(b.URL, 50)).Warn("dropping image block with invalid data url")
				continue
			}
			parts = append(parts, llm.Part{Type: llm.PartImage, ImageURL: b.URL})
		case domain.AudioBlock:
			if b.Transcript == "" {
				log.Warn("dropping audio block without transcription")
				continue
			}
			parts = append(parts, llm.Part{Type: llm.PartText, Text: "[Audio Transcription] " + b.Transcript})
		case domain.DocumentBlock:
			parts = append(parts, llm.Part{
				Type: llm.PartText,
				Text: fmt.Sprintf("[PDF Document] %s (%.1f KB)", b.Filename, float64(b.Size)/1024),
			})
		default:
			log.Warn("dropping unknown content block")
		}
	}

	if len(parts) == 1 && parts[0].Type == llm.PartText {
		return llm.Message{Role: llm.RoleUser, Content: parts[0].Text}
	}
	if len(parts) == 0 {
		return llm.Message{Role: llm.RoleUser}
	}
	return llm.Message{Role: llm.RoleUser, Parts: parts}
}

// GroundingText renders chunks as the numbered reference section the model
// is asked to cite from. Numbering starts at 1 and matches chunk order.
func GroundingText(chunks []domain.DocumentChunk) string {
	var sb strings.Builder
	sb.WriteString("\n\n=== Reference Document Content ===\n")
	for i, chunk := range chunks {
		source := chunk.Metadata.SourceInfo
		if source == "" {
			source = fmt.Sprintf("Document chunk %d", i+1)
		}
		fmt.Fprintf(&sb, "\n[%d] %s\nSource: %s\n", i+1, truncate(chunk.Content, groundingPreviewLength), source)
	}
	sb.WriteString("\nPlease cite relevant content in your answer using formats like [1], [2], etc.\n")
	return sb.String()
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	count := 0
	for idx := range s {
		if count == n {
			return s[:idx]
		}
		count++
	}
	return s
}
