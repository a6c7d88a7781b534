// Package ingestion turns uploaded PDFs into page-tagged, overlapping text
// chunks and reports progress as a stream of events.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/logging"
)

const pagePrefixLength = 50

// Progress steps, in emission order.
const (
	StepSavingFile     = "saving_file"
	StepLoadingPDF     = "loading_pdf"
	StepSplittingText  = "splitting_text"
	StepBuildingChunks = "building_chunks"
	StepCompleted      = "completed"
)

// Recorder receives every successfully chunked document.
type Recorder interface {
	Record(ctx context.Context, record domain.IngestionRecord) error
}

type Service struct {
	extractor Extractor
	splitter  RecursiveSplitter
	recorder  Recorder
	tempDir   string
	logger    logrus.FieldLogger
}

// NewService builds a chunking service. recorder may be nil; an empty tempDir
// uses the OS default.
func NewService(extractor Extractor, recorder Recorder, tempDir string, logger logrus.FieldLogger) *Service {
	if extractor == nil {
		extractor = PDFExtractor{}
	}
	return &Service{
		extractor: extractor,
		splitter:  NewRecursiveSplitter(),
		recorder:  recorder,
		tempDir:   tempDir,
		logger:    logging.OrDefault(logger),
	}
}

// Process chunks a PDF. The returned sequence yields progress events and
// ends with exactly one ResultEvent or ErrorEvent. It can be ranged over
// once; stopping early releases the staged file.
func (s *Service) Process(ctx context.Context, data []byte, filename string) iter.Seq[domain.Event] {
	return func(yield func(domain.Event) bool) {
		log := s.logger.WithFields(logrus.Fields{"filename": filename, "bytes": len(data)})
		fail := func(err error) {
			err = categorize(err)
			log.WithError(err).Error("pdf processing failed")
			yield(domain.NewErrorEvent(err))
		}

		if !yield(progress(StepSavingFile, fmt.Sprintf("Saving file %s...", filename), 10)) {
			return
		}
		path, err := s.stage(data)
		if err != nil {
			fail(err)
			return
		}
		defer func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.WithError(err).Warn("remove staged pdf")
			}
		}()

		if !yield(progress(StepLoadingPDF, "Analyzing PDF structure...", 30)) {
			return
		}
		if format := DetectFormat(filename, data); format != FormatPDF {
			fail(fmt.Errorf("%s is not a PDF document", filename))
			return
		}
		blocks, err := s.extractor.Extract(ctx, path)
		if err != nil {
			fail(err)
			return
		}
		log.WithField("blocks", len(blocks)).Info("pdf loading complete")

		if !yield(progress(StepSplittingText, fmt.Sprintf("Splitting text, %d original blocks...", len(blocks)), 60)) {
			return
		}
		fullText := joinBlocks(blocks)
		if strings.TrimSpace(fullText) == "" {
			fail(&domain.EmptyExtractionError{Filename: filename})
			return
		}
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		texts := s.splitter.Split(fullText)
		log.WithFields(logrus.Fields{"characters": runeLen(fullText), "chunks": len(texts)}).Info("text chunking complete")

		if !yield(progress(StepBuildingChunks, fmt.Sprintf("Building %d document chunks...", len(texts)), 80)) {
			return
		}
		chunks := BuildChunks(filename, texts, blocks)
		summary := domain.ChunkSummary{
			Filename:        filename,
			TotalChunks:     len(chunks),
			TotalCharacters: totalCharacters(chunks),
			Strategy:        s.extractor.Name(),
		}
		s.record(ctx, log, data, summary, chunks)

		if !yield(progress(StepCompleted, fmt.Sprintf("Processing complete! Generated %d document chunks", len(chunks)), 100)) {
			return
		}
		yield(domain.ResultEvent{Chunks: chunks, Summary: summary})
	}
}

// Chunk runs Process to completion and returns its result.
func (s *Service) Chunk(ctx context.Context, data []byte, filename string) ([]domain.DocumentChunk, domain.ChunkSummary, error) {
	for event := range s.Process(ctx, data, filename) {
		switch e := event.(type) {
		case domain.ResultEvent:
			return e.Chunks, e.Summary, nil
		case domain.ErrorEvent:
			if e.Err != nil {
				return nil, domain.ChunkSummary{}, e.Err
			}
			return nil, domain.ChunkSummary{}, errors.New(e.Message)
		}
	}
	return nil, domain.ChunkSummary{}, &domain.ProcessingError{Err: errors.New("stream ended without a result")}
}

// BuildChunks attaches provenance to split texts. Chunk ids and labels use
// the index from the splitter output, so they stay stable when empty chunks
// are dropped.
func BuildChunks(filename string, texts []string, blocks []Block) []domain.DocumentChunk {
	chunks := make([]domain.DocumentChunk, 0, len(texts))
	for i, text := range texts {
		content := strings.TrimSpace(text)
		if content == "" {
			continue
		}
		page := ResolvePage(content, blocks)
		chunks = append(chunks, domain.DocumentChunk{
			ID:      fmt.Sprintf("%s_%d", filename, i),
			Content: content,
			Metadata: domain.ChunkMetadata{
				Source:         filename,
				ChunkIndex:     i,
				ChunkSize:      runeLen(text),
				TotalChunks:    len(texts),
				PageNumber:     page,
				ReferenceLabel: fmt.Sprintf("[%d]", i+1),
				SourceInfo:     fmt.Sprintf("%s - Page %d", filename, page),
			},
		})
	}
	return chunks
}

// ResolvePage returns the page of the first page-tagged block containing the
// first characters of content, or 1 when none matches. The match is
// approximate because chunks can straddle blocks.
func ResolvePage(content string, blocks []Block) int {
	prefix := firstRunes(strings.TrimSpace(content), pagePrefixLength)
	for _, block := range blocks {
		if block.Page <= 0 {
			continue
		}
		if strings.Contains(block.Text, prefix) {
			return block.Page
		}
	}
	return 1
}

func (s *Service) stage(data []byte) (string, error) {
	file, err := os.CreateTemp(s.tempDir, "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}

func (s *Service) record(ctx context.Context, log logrus.FieldLogger, data []byte, summary domain.ChunkSummary, chunks []domain.DocumentChunk) {
	if s.recorder == nil {
		return
	}
	sum := sha256.Sum256(data)
	err := s.recorder.Record(ctx, domain.IngestionRecord{
		SHA256:  hex.EncodeToString(sum[:]),
		Summary: summary,
		Chunks:  chunks,
	})
	if err != nil {
		log.WithError(err).Warn("record ingestion in archive")
	}
}

func categorize(err error) error {
	if errors.Is(err, domain.ErrEmptyExtraction) || errors.Is(err, domain.ErrProcessing) {
		return err
	}
	return &domain.ProcessingError{Err: err}
}

func progress(step, message string, percent int) domain.ProgressEvent {
	return domain.ProgressEvent{Step: step, Message: message, Percent: percent}
}

func joinBlocks(blocks []Block) string {
	texts := make([]string, len(blocks))
	for i, block := range blocks {
		texts[i] = block.Text
	}
	return strings.Join(texts, "\n\n")
}

func totalCharacters(chunks []domain.DocumentChunk) int {
	total := 0
	for _, chunk := range chunks {
		total += runeLen(chunk.Content)
	}
	return total
}

func firstRunes(s string, n int) string {
	count := 0
	for idx := range s {
		if count == n {
			return s[:idx]
		}
		count++
	}
	return s
}
