package domain

import "strings"

// BlockKind names a content block variant on the wire.
type BlockKind string

const (
	KindText     BlockKind = "text"
	KindImage    BlockKind = "image"
	KindAudio    BlockKind = "audio"
	KindDocument BlockKind = "document"
)

// ContentBlock is a typed unit of user input. The set of variants is closed:
// TextBlock, ImageBlock, AudioBlock, DocumentBlock and UnknownBlock.
type ContentBlock interface {
	Kind() BlockKind
	contentBlock()
}

type TextBlock struct {
	Text string
}

// ImageBlock carries a self-describing image, normally a data URI.
type ImageBlock struct {
	URL string
}

// AudioBlock carries the transcript of an audio clip the client has already
// transcribed. The audio itself is never forwarded to the model.
type AudioBlock struct {
	Transcript string
}

// DocumentBlock is a display-only reference to an uploaded document.
type DocumentBlock struct {
	Filename string
	Size     int64
}

// UnknownBlock preserves a block whose kind was not recognised so the
// assembler can report and drop it.
type UnknownBlock struct {
	RawKind string
}

func (TextBlock) Kind() BlockKind      { return KindText }
func (ImageBlock) Kind() BlockKind     { return KindImage }
func (AudioBlock) Kind() BlockKind     { return KindAudio }
func (DocumentBlock) Kind() BlockKind  { return KindDocument }
func (b UnknownBlock) Kind() BlockKind { return BlockKind(b.RawKind) }

func (TextBlock) contentBlock()     {}
func (ImageBlock) contentBlock()    {}
func (AudioBlock) contentBlock()    {}
func (DocumentBlock) contentBlock() {}
func (UnknownBlock) contentBlock()  {}

// ParseContentBlock maps a wire-level block onto its variant. Both "pdf" and
// "document" select DocumentBlock.
func ParseContentBlock(kind, content, transcript, filename string, size int64) ContentBlock {
	switch BlockKind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindText:
		return TextBlock{Text: content}
	case KindImage:
		return ImageBlock{URL: content}
	case KindAudio:
		return AudioBlock{Transcript: transcript}
	case KindDocument, "pdf":
		return DocumentBlock{Filename: filename, Size: size}
	default:
		return UnknownBlock{RawKind: kind}
	}
}

// Role values for conversation turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryTurn is a prior exchange as supplied by the client.
type HistoryTurn struct {
	Role    string
	Content string
	Blocks  []ContentBlock
}

// DocumentChunk is one unit of extracted PDF text with its provenance.
type DocumentChunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

type ChunkMetadata struct {
	Source         string `json:"source"`
	ChunkIndex     int    `json:"chunk_index"`
	ChunkSize      int    `json:"chunk_size"`
	TotalChunks    int    `json:"total_chunks"`
	PageNumber     int    `json:"page_number"`
	ReferenceLabel string `json:"reference_label"`
	SourceInfo     string `json:"source_info"`
}

// ChunkSummary describes one chunking run.
type ChunkSummary struct {
	Filename        string `json:"filename"`
	TotalChunks     int    `json:"total_chunks"`
	TotalCharacters int    `json:"total_characters"`
	Strategy        string `json:"strategy"`
}

// Reference is a citation marker resolved against the supplied chunks.
type Reference struct {
	ID         int    `json:"id"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	ChunkID    string `json:"chunk_id"`
	SourceInfo string `json:"source_info"`
}

// IngestionRecord is what the optional ingestion archive stores for one
// successfully chunked document.
type IngestionRecord struct {
	SHA256  string
	Summary ChunkSummary
	Chunks  []DocumentChunk
}
