package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/api"
	"github.com/fabfab/rag-workbench/chat"
	"github.com/fabfab/rag-workbench/config"
	"github.com/fabfab/rag-workbench/database"
	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/ingestion"
	"github.com/fabfab/rag-workbench/knowledge"
	"github.com/fabfab/rag-workbench/llm"
	"github.com/fabfab/rag-workbench/logging"
	"github.com/fabfab/rag-workbench/media"
	"github.com/fabfab/rag-workbench/transcription"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "transcribe":
		transcribeCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Errorf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *logrus.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	host := flags.String("host", cfg.Server.Host, "interface to listen on")
	port := flags.Int("port", cfg.Server.Port, "port to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}
	cfg.Server.Host, cfg.Server.Port = *host, *port

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	catalog, err := config.LoadCatalog()
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	recorder, closeArchive := openArchive(ctx, cfg, logger)
	defer closeArchive()

	deps := api.Dependencies{
		Chat:      chat.NewService(llmClient, logger),
		Documents: ingestion.NewService(newExtractor(cfg), recorder, cfg.Media.TempDir, logger),
	}
	if audio, err := newTranscriptionService(cfg, logger); err != nil {
		logger.WithError(err).Warn("audio processing disabled")
	} else {
		deps.Audio = audio
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.New(cfg, catalog, deps, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     server.Addr,
			"provider": cfg.LLM.Provider,
			"model":    cfg.LLM.Model,
		}).Info("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down http server")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}
}

func ingestCmd(cfg config.Config, logger *logrus.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := flags.String("file", "", "path to the PDF to chunk")
	printChunks := flags.Bool("chunks", false, "print every chunk instead of the summary")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}
	if strings.TrimSpace(*file) == "" {
		logger.Fatal("ingest requires --file")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatalf("read pdf: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recorder, closeArchive := openArchive(ctx, cfg, logger)
	svc := ingestion.NewService(newExtractor(cfg), recorder, cfg.Media.TempDir, logger)
	err = runIngest(ctx, svc, data, filepath.Base(*file), *printChunks, os.Stdout, logger)
	closeArchive()
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

// runIngest drains the processing stream to completion so its staged files
// are removed before the caller decides how to exit.
func runIngest(ctx context.Context, docs api.DocumentProcessor, data []byte, filename string, printChunks bool, out io.Writer, logger logrus.FieldLogger) error {
	var failure error
	for event := range docs.Process(ctx, data, filename) {
		switch e := event.(type) {
		case domain.ProgressEvent:
			logger.WithFields(logrus.Fields{"step": e.Step, "progress": e.Percent}).Info(e.Message)
		case domain.ErrorEvent:
			failure = errors.New(e.Message)
		case domain.ResultEvent:
			if printChunks {
				for _, chunk := range e.Chunks {
					fmt.Fprintf(out, "%s %s\n%s\n\n", chunk.Metadata.ReferenceLabel, chunk.Metadata.SourceInfo, chunk.Content)
				}
			}
			fmt.Fprintf(out, "%s: %d chunks, %d characters (%s)\n",
				e.Summary.Filename, e.Summary.TotalChunks, e.Summary.TotalCharacters, e.Summary.Strategy)
		}
	}
	return failure
}

func transcribeCmd(cfg config.Config, logger *logrus.Logger, args []string) {
	flags := flag.NewFlagSet("transcribe", flag.ExitOnError)
	file := flags.String("file", "", "path to the audio or video file")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse transcribe flags: %v", err)
	}
	if strings.TrimSpace(*file) == "" {
		logger.Fatal("transcribe requires --file")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatalf("read media: %v", err)
	}

	svc, err := newTranscriptionService(cfg, logger)
	if err != nil {
		logger.Fatalf("transcription setup: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := svc.Transcribe(ctx, data, filepath.Base(*file))
	if err != nil {
		logger.Fatalf("%v", err)
	}
	fmt.Println(result.Text)
	fmt.Printf("\n(%s, %.1fs)\n", result.SourceFormat, result.Duration)
}

func chatCmd(cfg config.Config, logger *logrus.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	question := flags.String("question", "", "question to ask")
	pdfPath := flags.String("pdf", "", "optional PDF to ground the answer on")
	model := flags.String("model", cfg.LLM.Model, "chat model")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read question: %v", err)
		}
	}
	if strings.TrimSpace(*question) == "" {
		logger.Fatal("question cannot be empty")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var chunks []domain.DocumentChunk
	if *pdfPath != "" {
		data, err := os.ReadFile(*pdfPath)
		if err != nil {
			logger.Fatalf("read pdf: %v", err)
		}
		svc := ingestion.NewService(newExtractor(cfg), nil, cfg.Media.TempDir, logger)
		chunks, _, err = svc.Chunk(ctx, data, filepath.Base(*pdfPath))
		if err != nil {
			logger.Fatalf("%v", err)
		}
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	svc := chat.NewService(llmClient, logger)
	if err := runChat(ctx, svc, chat.Request{Content: *question, Model: *model, Chunks: chunks}, os.Stdout); err != nil {
		logger.Fatalf("%v", err)
	}
}

func runChat(ctx context.Context, svc api.ChatService, req chat.Request, out io.Writer) error {
	var failure error
	for event := range svc.ChatStream(ctx, req) {
		switch e := event.(type) {
		case domain.ContentDeltaEvent:
			fmt.Fprint(out, e.Text)
		case domain.ErrorEvent:
			fmt.Fprintln(out)
			failure = errors.New(e.Message)
		case domain.MessageCompleteEvent:
			fmt.Fprintln(out)
			if len(e.References) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "References:")
				for _, ref := range e.References {
					fmt.Fprintf(out, "[%d] %s\n", ref.ID, ref.SourceInfo)
				}
			}
		}
	}
	return failure
}

func clearCmd(cfg config.Config, logger *logrus.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}
	if !cfg.ArchiveEnabled() {
		logger.Info("no ingestion archive configured, nothing to clear")
		return
	}

	if !*confirmed {
		fmt.Print("This will permanently delete archived chunks from Postgres and Neo4j. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Info("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Info("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.PostgresDSN != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("postgres connection: %v", err)
		}
		defer pool.Close()
		if err := database.NewChunkArchive(pool, logger).Purge(ctx); err != nil {
			logger.Fatalf("clear postgres: %v", err)
		}
		logger.Info("cleared Postgres ingested_documents and ingested_chunks")
	}

	if cfg.Neo4jURI != "" {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Fatalf("neo4j connection: %v", err)
		}
		defer driver.Close(ctx)
		if err := knowledge.NewGraphRecorder(driver, logger).Purge(ctx); err != nil {
			logger.Fatalf("clear neo4j: %v", err)
		}
		logger.Info("cleared Neo4j documents, chunks and pages")
	}
}

// openArchive connects the optional ingestion archives. Unreachable stores
// are logged and skipped.
func openArchive(ctx context.Context, cfg config.Config, logger *logrus.Logger) (ingestion.Recorder, func()) {
	var (
		recorders ingestion.Recorders
		closers   []func()
	)

	if cfg.PostgresDSN != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err == nil {
			if err = database.EnsureArchiveSchema(ctx, pool); err != nil {
				pool.Close()
			}
		}
		if err != nil {
			logger.WithError(err).Warn("postgres archive disabled")
		} else {
			recorders = append(recorders, database.NewChunkArchive(pool, logger))
			closers = append(closers, pool.Close)
		}
	}

	if cfg.Neo4jURI != "" {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.WithError(err).Warn("neo4j archive disabled")
		} else {
			recorders = append(recorders, knowledge.NewGraphRecorder(driver, logger))
			closers = append(closers, func() { _ = driver.Close(context.Background()) })
		}
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if len(recorders) == 0 {
		return nil, closeAll
	}
	return recorders, closeAll
}

func newExtractor(cfg config.Config) ingestion.Extractor {
	if cfg.UnstructuredURL != "" {
		return ingestion.NewUnstructuredExtractor(cfg.UnstructuredURL, cfg.UnstructuredAPIKey)
	}
	return ingestion.PDFExtractor{}
}

func newTranscriptionService(cfg config.Config, logger *logrus.Logger) (*transcription.Service, error) {
	whisper, err := llm.NewWhisperTranscriber(cfg)
	if err != nil {
		return nil, err
	}
	transcoder := media.NewFFmpegTranscoder(cfg.Media.FFmpegBin, cfg.Media.FFprobeBin)
	normalizer := media.NewNormalizer(transcoder, cfg.Media.TempDir, logger)
	return transcription.NewService(normalizer, whisper, logger), nil
}

func printUsage() {
	fmt.Println("Usage: rag-workbench <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve       Run the HTTP API (chat, PDF chunking, audio transcription)")
	fmt.Println("  ingest      Chunk a PDF and print the result (--file doc.pdf [--chunks])")
	fmt.Println("  transcribe  Transcribe an audio or video file (--file clip.mp4)")
	fmt.Println("  chat        Ask a question, optionally grounded on a PDF (--question q [--pdf doc.pdf])")
	fmt.Println("  clear       Remove archived chunks from Postgres/Neo4j")
}
