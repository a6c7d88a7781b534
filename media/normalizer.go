package media

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/logging"
)

// Transcoder performs the actual decoding work.
type Transcoder interface {
	ExtractAudio(ctx context.Context, inPath, outPath string) error
	Probe(ctx context.Context, path string) (float64, error)
}

// Audio is normalized audio backed by temporary files. Close must be called
// once the audio is no longer needed.
type Audio struct {
	Path         string
	Duration     float64
	SourceFormat string
	MIME         string

	temps []string
}

// Close removes every temporary file backing the audio. It is safe to call
// more than once.
func (a *Audio) Close() error {
	var errs []error
	for _, path := range a.temps {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	a.temps = nil
	return errors.Join(errs...)
}

type Normalizer struct {
	transcoder Transcoder
	tempDir    string
	logger     logrus.FieldLogger
}

// NewNormalizer builds a Normalizer. An empty tempDir uses the OS default.
func NewNormalizer(transcoder Transcoder, tempDir string, logger logrus.FieldLogger) *Normalizer {
	return &Normalizer{
		transcoder: transcoder,
		tempDir:    tempDir,
		logger:     logging.OrDefault(logger),
	}
}

// Normalize stages data and converts it into audio the transcription service
// accepts. Unsupported or corrupt input fails with *domain.MediaDecodeError
// and leaves no temporary files behind.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, filename string) (_ *Audio, err error) {
	if len(data) == 0 {
		return nil, &domain.MediaDecodeError{Filename: filename, Message: "empty upload"}
	}

	mtype := mimetype.Detect(data)
	if !IsMedia(mtype) {
		return nil, &domain.MediaDecodeError{
			Filename: filename,
			Message:  fmt.Sprintf("unsupported content type %s", mtype.String()),
		}
	}

	ext := Extension(filename)
	audio := &Audio{SourceFormat: ext, MIME: mtype.String()}
	defer func() {
		if err != nil {
			if closeErr := audio.Close(); closeErr != nil {
				n.logger.WithError(closeErr).Warn("remove temporary media files")
			}
		}
	}()

	source, err := n.stage(data, "media-*"+ext)
	if err != nil {
		return nil, err
	}
	audio.temps = append(audio.temps, source)

	log := n.logger.WithFields(logrus.Fields{"filename": filename, "format": ext, "mime": audio.MIME})

	switch category := Classify(filename); category {
	case CategoryNativeAudio:
		audio.Path = source
	case CategoryVideo, CategoryOtherAudio:
		log.WithField("category", category).Info("converting media to wav")
		out, err := n.stage(nil, "audio-*.wav")
		if err != nil {
			return nil, err
		}
		audio.temps = append(audio.temps, out)
		if err := n.transcoder.ExtractAudio(ctx, source, out); err != nil {
			return nil, &domain.MediaDecodeError{Filename: filename, Err: err}
		}
		audio.Path = out
	}

	duration, probeErr := n.transcoder.Probe(ctx, source)
	if probeErr != nil {
		log.WithError(probeErr).Warn("unable to read media duration")
		duration = 0
	}
	audio.Duration = duration

	return audio, nil
}

func (n *Normalizer) stage(data []byte, pattern string) (string, error) {
	file, err := os.CreateTemp(n.tempDir, pattern)
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
