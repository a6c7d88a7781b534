package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/rag-workbench/config"
	"github.com/fabfab/rag-workbench/domain"
)

const (
	RoleSystem    = domain.RoleSystem
	RoleUser      = domain.RoleUser
	RoleAssistant = domain.RoleAssistant
)

// PartType distinguishes the pieces of a structured message.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// Part is one element of a multimodal message.
type Part struct {
	Type     PartType
	Text     string
	ImageURL string
}

// Message is a role-tagged conversation turn. Content is used when Parts is
// empty; otherwise Parts holds the ordered text and image parts.
type Message struct {
	Role    string
	Content string
	Parts   []Part
}

// IsStructured reports whether the message carries content parts.
func (m Message) IsStructured() bool {
	return len(m.Parts) > 0
}

// Text flattens the message into plain text, ignoring images.
func (m Message) Text() string {
	if !m.IsStructured() {
		return m.Content
	}
	var out string
	for _, part := range m.Parts {
		if part.Type != PartText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += part.Text
	}
	return out
}

// Request describes one chat completion call. Zero values fall back to the
// client's configured defaults.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// StreamClient is implemented by clients that can deliver output
// incrementally. Returning an error from fn aborts the upstream stream and
// GenerateStream returns that error.
type StreamClient interface {
	Client
	GenerateStream(ctx context.Context, req Request, fn func(string) error) error
}

type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float32

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func optionsFromConfig(cfg config.Config) Options {
	return Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}
}

func NewClient(cfg config.Config) (StreamClient, error) {
	opts := optionsFromConfig(cfg)

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI, "":
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}

func (o Options) resolve(req Request) Request {
	if req.Model == "" {
		req.Model = o.Model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = o.MaxTokens
	}
	// Zero means unset: go-openai omits it from the request.
	if req.Temperature == 0 {
		req.Temperature = o.Temperature
	}
	return req
}
