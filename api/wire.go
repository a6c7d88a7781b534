package api

import (
	"encoding/base64"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/fabfab/rag-workbench/chat"
	"github.com/fabfab/rag-workbench/domain"
)

const (
	defaultModel         = "gpt-4o"
	defaultKnowledgeBase = "default"
	defaultPDFFilename   = "document.pdf"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type rootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type contentBlockRequest struct {
	Type          string `json:"type"`
	Content       string `json:"content"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	Transcription string `json:"transcription,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Filesize      int64  `json:"filesize,omitempty"`
}

func (b contentBlockRequest) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Filesize, validation.Min(int64(0))),
	)
}

type historyTurnRequest struct {
	Role          string                `json:"role"`
	Content       string                `json:"content"`
	ContentBlocks []contentBlockRequest `json:"content_blocks"`
}

func (t historyTurnRequest) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ContentBlocks),
	)
}

type chatRequest struct {
	Content       string                 `json:"content"`
	ContentBlocks []contentBlockRequest  `json:"content_blocks"`
	PDFChunks     []domain.DocumentChunk `json:"pdf_chunks"`
	History       []historyTurnRequest   `json:"history"`
	Model         string                 `json:"model"`
	KnowledgeBase string                 `json:"knowledge_base"`
}

func (r *chatRequest) applyDefaults() {
	if strings.TrimSpace(r.Model) == "" {
		r.Model = defaultModel
	}
	if strings.TrimSpace(r.KnowledgeBase) == "" {
		r.KnowledgeBase = defaultKnowledgeBase
	}
}

func (r chatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content,
			validation.Required.When(len(r.ContentBlocks) == 0).Error("content or content_blocks is required")),
		validation.Field(&r.ContentBlocks),
		validation.Field(&r.History),
		validation.Field(&r.Model, validation.Length(1, 100)),
	)
}

func (r chatRequest) toDomain() chat.Request {
	history := make([]domain.HistoryTurn, 0, len(r.History))
	for _, turn := range r.History {
		history = append(history, domain.HistoryTurn{
			Role:    turn.Role,
			Content: turn.Content,
			Blocks:  toContentBlocks(turn.ContentBlocks),
		})
	}
	return chat.Request{
		Content: r.Content,
		Blocks:  toContentBlocks(r.ContentBlocks),
		History: history,
		Model:   r.Model,
		Chunks:  r.PDFChunks,
	}
}

func toContentBlocks(blocks []contentBlockRequest) []domain.ContentBlock {
	out := make([]domain.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, domain.ParseContentBlock(b.Type, b.Content, b.Transcription, b.Filename, b.Filesize))
	}
	return out
}

type chatResponse struct {
	Content    string             `json:"content"`
	Role       string             `json:"role"`
	Timestamp  string             `json:"timestamp"`
	References []domain.Reference `json:"references"`
}

type pdfProcessRequest struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

func (r pdfProcessRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required.Error("missing PDF content")),
		validation.Field(&r.Filename, validation.Length(0, 255)),
	)
}

type pdfPagesRequest struct {
	Content  string `json:"content"`
	MaxPages int    `json:"max_pages"`
}

func (r pdfPagesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required.Error("missing PDF content")),
		validation.Field(&r.MaxPages, validation.Min(0), validation.Max(50)),
	)
}

// pdfPagesResponse counts the images returned, not the pages in the PDF.
type pdfPagesResponse struct {
	Success    bool     `json:"success"`
	TotalPages int      `json:"total_pages"`
	Images     []string `json:"images"`
}

type audioResponse struct {
	Success       bool    `json:"success"`
	Filename      string  `json:"filename"`
	Transcription string  `json:"transcription"`
	Duration      float64 `json:"duration"`
	Format        string  `json:"format"`
}

// decodeBase64Payload accepts plain base64 or a data URL.
func decodeBase64Payload(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "data:") {
		if idx := strings.LastIndex(content, ","); idx >= 0 {
			content = content[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("PDF data decode failed: %w", err)
	}
	return data, nil
}

// Wire forms of the stream events.

type progressPayload struct {
	Type     domain.EventType `json:"type"`
	Step     string           `json:"step"`
	Message  string           `json:"message"`
	Progress int              `json:"progress"`
}

type contentDeltaPayload struct {
	Type      domain.EventType `json:"type"`
	Content   string           `json:"content"`
	Timestamp string           `json:"timestamp"`
}

type messageCompletePayload struct {
	Type        domain.EventType   `json:"type"`
	FullContent string             `json:"full_content"`
	References  []domain.Reference `json:"references"`
	Timestamp   string             `json:"timestamp"`
}

type resultPayload struct {
	Type    domain.EventType       `json:"type"`
	Chunks  []domain.DocumentChunk `json:"chunks"`
	Summary domain.ChunkSummary    `json:"summary"`
}

type errorPayload struct {
	Type      domain.EventType `json:"type"`
	Error     string           `json:"error"`
	Timestamp string           `json:"timestamp"`
}

func eventPayload(event domain.Event, timestamp string) any {
	switch e := event.(type) {
	case domain.ProgressEvent:
		return progressPayload{Type: e.Type(), Step: e.Step, Message: e.Message, Progress: e.Percent}
	case domain.ContentDeltaEvent:
		return contentDeltaPayload{Type: e.Type(), Content: e.Text, Timestamp: timestamp}
	case domain.MessageCompleteEvent:
		refs := e.References
		if refs == nil {
			refs = []domain.Reference{}
		}
		return messageCompletePayload{Type: e.Type(), FullContent: e.FullText, References: refs, Timestamp: timestamp}
	case domain.ResultEvent:
		chunks := e.Chunks
		if chunks == nil {
			chunks = []domain.DocumentChunk{}
		}
		return resultPayload{Type: e.Type(), Chunks: chunks, Summary: e.Summary}
	case domain.ErrorEvent:
		return errorPayload{Type: e.Type(), Error: e.Message, Timestamp: timestamp}
	default:
		return errorPayload{Type: domain.EventError, Error: fmt.Sprintf("unsupported event %T", event), Timestamp: timestamp}
	}
}
