// Package transcription turns uploaded audio or video into transcript text.
package transcription

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/logging"
	"github.com/fabfab/rag-workbench/media"
)

// Transcriber is the external speech-to-text service.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Normalizer prepares uploads for the Transcriber.
type Normalizer interface {
	Normalize(ctx context.Context, data []byte, filename string) (*media.Audio, error)
}

type Result struct {
	Filename     string  `json:"filename"`
	Text         string  `json:"transcription"`
	Duration     float64 `json:"duration"`
	SourceFormat string  `json:"format"`
}

type Service struct {
	normalizer  Normalizer
	transcriber Transcriber
	logger      logrus.FieldLogger
}

func NewService(normalizer Normalizer, transcriber Transcriber, logger logrus.FieldLogger) *Service {
	return &Service{
		normalizer:  normalizer,
		transcriber: transcriber,
		logger:      logging.OrDefault(logger),
	}
}

// Transcribe normalizes the upload, calls the transcription service and
// returns the trimmed transcript. Every failure is reported as a single
// *domain.TranscriptionError; nothing is retried.
func (s *Service) Transcribe(ctx context.Context, data []byte, filename string) (Result, error) {
	log := s.logger.WithField("filename", filename)
	log.Info("starting audio processing")

	audio, err := s.normalizer.Normalize(ctx, data, filename)
	if err != nil {
		log.WithError(err).Error("audio normalization failed")
		return Result{}, &domain.TranscriptionError{Err: err}
	}
	defer func() {
		if closeErr := audio.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("remove temporary audio files")
		}
	}()

	raw, err := s.transcriber.Transcribe(ctx, audio.Path)
	if err != nil {
		log.WithError(err).Error("transcription service failed")
		return Result{}, &domain.TranscriptionError{Err: err}
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		log.Error("transcription service returned no text")
		return Result{}, &domain.TranscriptionError{Err: errors.New("empty transcript")}
	}

	log.WithFields(logrus.Fields{"characters": len(text), "duration": audio.Duration}).Info("audio processing complete")
	return Result{
		Filename:     filename,
		Text:         text,
		Duration:     audio.Duration,
		SourceFormat: audio.SourceFormat,
	}, nil
}
