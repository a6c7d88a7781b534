// Package domain holds the types shared by the ingestion, transcription and
// chat pipelines: content blocks, document chunks, stream events and the
// error taxonomy.
package domain

import (
	"errors"
	"net/http"
)

// HTTPError is implemented by errors that map onto an HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors for use with errors.Is.
var (
	ErrMediaDecode     = errors.New("media decode failed")
	ErrTranscription   = errors.New("transcription failed")
	ErrEmptyExtraction = errors.New("empty extraction")
	ErrProcessing      = errors.New("processing failed")
	ErrGeneration      = errors.New("generation failed")
)

// MediaDecodeError reports unsupported or corrupt audio/video input.
type MediaDecodeError struct {
	Filename string
	Message  string
	Err      error
}

func (e *MediaDecodeError) Error() string {
	msg := "cannot decode media " + e.Filename
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MediaDecodeError) Unwrap() error       { return e.Err }
func (e *MediaDecodeError) Is(target error) bool { return target == ErrMediaDecode }
func (e *MediaDecodeError) StatusCode() int      { return http.StatusBadRequest }

// TranscriptionError consolidates every failure of the transcription
// sequence: decode, service call or empty result.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return "transcription failed"
	}
	return "transcription failed: " + e.Err.Error()
}

func (e *TranscriptionError) Unwrap() error       { return e.Err }
func (e *TranscriptionError) Is(target error) bool { return target == ErrTranscription }
func (e *TranscriptionError) StatusCode() int      { return http.StatusInternalServerError }

// EmptyExtractionError means the PDF produced no text at all, which usually
// points at a scanned document without usable OCR.
type EmptyExtractionError struct {
	Filename string
}

func (e *EmptyExtractionError) Error() string {
	return "PDF document extraction failed: could not extract any text content from " + e.Filename +
		". This may be a scanned PDF. Please ensure OCR is available for the extraction service."
}

func (e *EmptyExtractionError) Is(target error) bool { return target == ErrEmptyExtraction }
func (e *EmptyExtractionError) StatusCode() int      { return http.StatusUnprocessableEntity }

// ProcessingError wraps any extraction or chunking failure that has no more
// specific category.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return "PDF processing failed"
	}
	return "PDF processing failed: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error       { return e.Err }
func (e *ProcessingError) Is(target error) bool { return target == ErrProcessing }
func (e *ProcessingError) StatusCode() int      { return http.StatusInternalServerError }

// GenerationError reports a chat-completion failure, including failures in
// the middle of a stream.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation failed"
	}
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error       { return e.Err }
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
func (e *GenerationError) StatusCode() int      { return http.StatusBadGateway }

// StatusCode returns the HTTP status for err, defaulting to 500.
func StatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return http.StatusInternalServerError
}
