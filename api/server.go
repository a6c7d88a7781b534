package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/chat"
	"github.com/fabfab/rag-workbench/config"
	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/ingestion"
	"github.com/fabfab/rag-workbench/logging"
	"github.com/fabfab/rag-workbench/transcription"
)

const (
	apiName    = "Multimodal RAG Workbench API"
	apiVersion = "1.0.0"

	multipartMemory = 32 << 20
)

var allowedAudioTypes = map[string]struct{}{
	"audio/mpeg": {}, "audio/mp3": {}, "audio/wav": {}, "audio/flac": {}, "audio/m4a": {}, "audio/ogg": {},
	"video/mp4": {}, "video/avi": {}, "video/mov": {}, "video/mkv": {}, "video/webm": {},
}

type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (chat.Response, error)
	ChatStream(ctx context.Context, req chat.Request) iter.Seq[domain.Event]
}

type DocumentProcessor interface {
	Process(ctx context.Context, data []byte, filename string) iter.Seq[domain.Event]
}

type AudioTranscriber interface {
	Transcribe(ctx context.Context, data []byte, filename string) (transcription.Result, error)
}

// PageImageExtractor renders the first pages of a PDF as PNG images.
type PageImageExtractor func(ctx context.Context, data []byte, maxPages int) ([]ingestion.PageImage, error)

// Dependencies are the services behind the HTTP API. A nil service makes its
// routes answer 500.
type Dependencies struct {
	Chat       ChatService
	Documents  DocumentProcessor
	Audio      AudioTranscriber
	PageImages PageImageExtractor
}

// Server exposes the chat, document and audio workflows over HTTP.
type Server struct {
	cfg       config.Config
	catalog   config.Catalog
	deps      Dependencies
	logger    logrus.FieldLogger
	keepAlive time.Duration
	now       func() time.Time
	handler   http.Handler
}

func New(cfg config.Config, catalog config.Catalog, deps Dependencies, logger logrus.FieldLogger) *Server {
	if deps.PageImages == nil {
		deps.PageImages = ingestion.NewPageRenderer(cfg.Media.PdftoppmBin, cfg.Media.TempDir).Render
	}
	s := &Server{
		cfg:       cfg,
		catalog:   catalog,
		deps:      deps,
		logger:    logging.OrDefault(logger),
		keepAlive: defaultKeepAliveInterval,
		now:       time.Now,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /openapi.yaml", s.handleOpenAPI)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/knowledge-bases", s.handleKnowledgeBases)
	mux.HandleFunc("POST /api/pdf/process", s.handlePDFProcess)
	mux.HandleFunc("POST /api/pdf/pages", s.handlePDFPages)
	mux.HandleFunc("POST /api/audio/process", s.handleAudioProcess)

	var handler http.Handler = mux
	handler = s.withRecovery(handler)
	handler = withRequestLog(s.logger, handler)
	handler = withCORS(s.cfg.Server.AllowedOrigins, handler)
	return handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, rootResponse{Message: apiName, Version: apiVersion, Status: "running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"openapi.yaml\"")
	_, _ = w.Write(openAPISpecYAML)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{"models": s.catalog.Models})
}

func (s *Server) handleKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{"knowledge_bases": s.catalog.KnowledgeBases})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	log := requestLogger(r.Context(), s.logger).WithFields(logrus.Fields{
		"model":  req.Model,
		"blocks": len(req.ContentBlocks),
		"chunks": len(req.PDFChunks),
	})
	log.Info("chat stream requested")

	stream := newSSEWriter(w)
	for event := range s.deps.Chat.ChatStream(r.Context(), req.toDomain()) {
		if err := stream.Send(eventPayload(event, s.timestamp())); err != nil {
			log.WithError(err).Warn("client went away during chat stream")
			return
		}
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.deps.Chat.Chat(r.Context(), req.toDomain())
	if err != nil {
		s.writeError(w, r, domain.StatusCode(err), err)
		return
	}
	refs := resp.References
	if refs == nil {
		refs = []domain.Reference{}
	}
	s.writeJSON(w, r, http.StatusOK, chatResponse{
		Content:    resp.Answer,
		Role:       domain.RoleAssistant,
		Timestamp:  s.timestamp(),
		References: refs,
	})
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	if s.deps.Chat == nil {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("chat service is not configured"))
		return chatRequest{}, false
	}
	var req chatRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return chatRequest{}, false
	}
	req.applyDefaults()
	if err := req.Validate(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return chatRequest{}, false
	}
	if !s.catalog.HasModel(req.Model) {
		requestLogger(r.Context(), s.logger).WithField("model", req.Model).Warn("model is not in the catalog")
	}
	return req, true
}

func (s *Server) handlePDFProcess(w http.ResponseWriter, r *http.Request) {
	if s.deps.Documents == nil {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("document processor is not configured"))
		return
	}

	var req pdfProcessRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	filename := filepath.Base(req.Filename)
	if req.Filename == "" {
		filename = defaultPDFFilename
	}

	data, ok := s.decodeUpload(w, r, req.Content)
	if !ok {
		return
	}

	log := requestLogger(r.Context(), s.logger).WithFields(logrus.Fields{"filename": filename, "bytes": len(data)})
	log.Info("pdf processing requested")

	stream := newSSEWriter(w)
	stop := stream.keepAlive(r.Context(), s.keepAlive)
	defer stop()

	for event := range s.deps.Documents.Process(r.Context(), data, filename) {
		if err := stream.Send(eventPayload(event, s.timestamp())); err != nil {
			log.WithError(err).Warn("client went away during pdf processing")
			return
		}
	}
	stop()
	if err := stream.Done(); err != nil {
		log.WithError(err).Warn("write stream terminator")
	}
}

func (s *Server) handlePDFPages(w http.ResponseWriter, r *http.Request) {
	var req pdfPagesRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.MaxPages == 0 {
		req.MaxPages = ingestion.DefaultMaxPages
	}

	data, ok := s.decodeUpload(w, r, req.Content)
	if !ok {
		return
	}

	pages, err := s.deps.PageImages(r.Context(), data, req.MaxPages)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("PDF page extraction failed: %w", err))
		return
	}
	images := make([]string, 0, len(pages))
	for _, page := range pages {
		images = append(images, page.Base64())
	}
	requestLogger(r.Context(), s.logger).WithField("pages", len(images)).Info("rendered PDF page images")
	s.writeJSON(w, r, http.StatusOK, pdfPagesResponse{
		Success:    true,
		TotalPages: len(images),
		Images:     images,
	})
}

func (s *Server) handleAudioProcess(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audio == nil {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("audio processor not initialized, please check dependencies"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if _, ok := allowedAudioTypes[contentType]; !ok {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", contentType))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	result, err := s.deps.Audio.Transcribe(r.Context(), data, filepath.Base(header.Filename))
	if err != nil {
		s.writeError(w, r, domain.StatusCode(err), fmt.Errorf("audio processing failed: %w", err))
		return
	}
	s.writeJSON(w, r, http.StatusOK, audioResponse{
		Success:       true,
		Filename:      result.Filename,
		Transcription: result.Text,
		Duration:      result.Duration,
		Format:        result.SourceFormat,
	})
}

// decodeUpload decodes a base64 PDF payload and enforces the upload cap.
func (s *Server) decodeUpload(w http.ResponseWriter, r *http.Request, content string) ([]byte, bool) {
	data, err := decodeBase64Payload(content)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return nil, false
	}
	if limit := s.cfg.Server.MaxUploadBytes; limit > 0 && int64(len(data)) > limit {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf(
			"PDF file too large: %.1fMB, maximum supported is %dMB",
			float64(len(data))/1024/1024, limit/1024/1024))
		return nil, false
	}
	return data, true
}

func (s *Server) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		requestLogger(r.Context(), s.logger).WithError(err).Warn("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	log := requestLogger(r.Context(), s.logger).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		log.Error("api error")
	} else {
		log.Warn("api error")
	}
	s.writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

// decodeJSON reads a single JSON object. Base64 payloads inflate uploads by
// a third, so the body cap is twice the upload cap.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	body := io.Reader(r.Body)
	if limit := s.cfg.Server.MaxUploadBytes; limit > 0 {
		body = http.MaxBytesReader(w, r.Body, 2*limit)
	}

	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
