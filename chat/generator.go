package chat

import (
	"context"
	"errors"
	"iter"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/llm"
	"github.com/fabfab/rag-workbench/logging"
)

const referencePreviewLength = 200

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// errStopped aborts the upstream stream once the consumer stops reading.
var errStopped = errors.New("consumer stopped reading")

// Generator streams model output and resolves citation markers against the
// chunks the answer was grounded on.
type Generator struct {
	client llm.StreamClient
	logger logrus.FieldLogger
}

func NewGenerator(client llm.StreamClient, logger logrus.FieldLogger) *Generator {
	return &Generator{client: client, logger: logging.OrDefault(logger)}
}

// Stream yields a ContentDeltaEvent per non-empty fragment, then either a
// MessageCompleteEvent carrying the resolved references or a single
// ErrorEvent. Breaking out of the range loop cancels the upstream call.
func (g *Generator) Stream(ctx context.Context, turns []llm.Message, model string, chunks []domain.DocumentChunk) iter.Seq[domain.Event] {
	return func(yield func(domain.Event) bool) {
		log := g.logger.WithFields(logrus.Fields{"model": model, "turns": len(turns), "chunks": len(chunks)})
		if g.client == nil {
			yield(domain.NewErrorEvent(&domain.GenerationError{Err: errors.New("llm client is not configured")}))
			return
		}

		var (
			builder   strings.Builder
			fragments int
		)
		err := g.client.GenerateStream(ctx, llm.Request{Model: model, Messages: turns}, func(fragment string) error {
			if fragment == "" {
				return nil
			}
			fragments++
			builder.WriteString(fragment)
			if !yield(domain.ContentDeltaEvent{Text: fragment}) {
				return errStopped
			}
			return nil
		})
		if errors.Is(err, errStopped) {
			log.WithField("fragments", fragments).Info("generation abandoned by consumer")
			return
		}
		if err != nil {
			err = &domain.GenerationError{Err: err}
			log.WithError(err).Error("streaming generation failed")
			yield(domain.NewErrorEvent(err))
			return
		}

		full := builder.String()
		references := ResolveReferences(full, chunks)
		log.WithFields(logrus.Fields{"fragments": fragments, "references": len(references)}).Info("streaming generation complete")
		yield(domain.MessageCompleteEvent{FullText: full, References: references})
	}
}

// Complete is the non-streaming form of Stream.
func (g *Generator) Complete(ctx context.Context, turns []llm.Message, model string, chunks []domain.DocumentChunk) (string, []domain.Reference, error) {
	if g.client == nil {
		return "", nil, &domain.GenerationError{Err: errors.New("llm client is not configured")}
	}
	text, err := g.client.Generate(ctx, llm.Request{Model: model, Messages: turns})
	if err != nil {
		err = &domain.GenerationError{Err: err}
		g.logger.WithError(err).WithField("model", model).Error("generation failed")
		return "", nil, err
	}
	return text, ResolveReferences(text, chunks), nil
}

// ResolveReferences returns one Reference per in-range citation marker in
// text, in order of appearance. Repeated markers are repeated; markers
// outside 1..len(chunks) are ignored.
func ResolveReferences(text string, chunks []domain.DocumentChunk) []domain.Reference {
	references := []domain.Reference{}
	if len(chunks) == 0 {
		return references
	}
	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(chunks) {
			continue
		}
		chunk := chunks[n-1]
		references = append(references, domain.Reference{
			ID:         n,
			Text:       preview(chunk.Content),
			Source:     orDefault(chunk.Metadata.Source, "Unknown source"),
			Page:       pageOrDefault(chunk.Metadata.PageNumber),
			ChunkID:    chunk.ID,
			SourceInfo: orDefault(chunk.Metadata.SourceInfo, "Unknown source"),
		})
	}
	return references
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= referencePreviewLength {
		return content
	}
	return truncate(content, referencePreviewLength) + "..."
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func pageOrDefault(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}
