package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fabfab/rag-workbench/config"
)

// WhisperTranscriber calls the OpenAI audio transcription endpoint.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

func NewWhisperTranscriber(cfg config.Config) (*WhisperTranscriber, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("transcription requires OPENAI_API_KEY")
	}
	model := cfg.TranscriptionModel
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{
		client: newOpenAISDKClient(optionsFromConfig(cfg)),
		model:  model,
	}, nil
}

// Transcribe uploads the audio file at path and returns the raw transcript.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("create openai transcription: %w", err)
	}
	return resp.Text, nil
}
