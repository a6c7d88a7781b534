// Package chat assembles multimodal conversations, grounds the current turn
// on document chunks and resolves the citations in the model's answer.
package chat

import (
	"context"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/llm"
	"github.com/fabfab/rag-workbench/logging"
)

// Request is one chat exchange as received from a client.
type Request struct {
	Content string
	Blocks  []domain.ContentBlock
	History []domain.HistoryTurn
	Model   string
	Chunks  []domain.DocumentChunk
}

type Response struct {
	Answer     string             `json:"answer"`
	References []domain.Reference `json:"references"`
}

type Service struct {
	assembler *Assembler
	generator *Generator
	logger    logrus.FieldLogger
}

func NewService(client llm.StreamClient, logger logrus.FieldLogger) *Service {
	logger = logging.OrDefault(logger)
	return &Service{
		assembler: NewAssembler(logger),
		generator: NewGenerator(client, logger),
		logger:    logger,
	}
}

// Chat returns the complete answer with its references.
func (s *Service) Chat(ctx context.Context, req Request) (Response, error) {
	turns := s.messages(req)
	answer, references, err := s.generator.Complete(ctx, turns, req.Model, req.Chunks)
	if err != nil {
		return Response{}, err
	}
	return Response{Answer: answer, References: references}, nil
}

// ChatStream returns the event stream for one exchange. Nothing is sent to
// the model until the sequence is ranged over.
func (s *Service) ChatStream(ctx context.Context, req Request) iter.Seq[domain.Event] {
	return func(yield func(domain.Event) bool) {
		turns := s.messages(req)
		for event := range s.generator.Stream(ctx, turns, req.Model, req.Chunks) {
			if !yield(event) {
				return
			}
		}
	}
}

func (s *Service) messages(req Request) []llm.Message {
	turns := s.assembler.Conversation(req.History, req.Content, req.Blocks, req.Chunks)
	s.logger.WithFields(logrus.Fields{
		"model":   req.Model,
		"history": len(req.History),
		"blocks":  len(req.Blocks),
		"chunks":  len(req.Chunks),
	}).Info("chat request assembled")
	return turns
}
