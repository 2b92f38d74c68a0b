package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"digital-dean/internal/api"
	"digital-dean/internal/chromemdb"
	"digital-dean/internal/chunker"
	"digital-dean/internal/config"
	"digital-dean/internal/db"
	"digital-dean/internal/embedding"
	"digital-dean/internal/grading"
	"digital-dean/internal/helper"
	"digital-dean/internal/ingest"
	"digital-dean/internal/llmservice"
	"digital-dean/internal/models"
	"digital-dean/internal/parser"
	"digital-dean/internal/prompt"
	"digital-dean/internal/quiz"
	"digital-dean/internal/rag"
	"digital-dean/internal/watcher"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	filePath := flag.String("file", "", "Syllabus document to ingest")
	query := flag.String("query", "", "Question to ask the tutor")
	quizTopic := flag.String("quiz", "", "Run an interactive quiz on a topic")
	gradeTopic := flag.String("grade", "", "Topic to grade a submission against (with -image or -answer)")
	imagePath := flag.String("image", "", "Image of a handwritten answer to grade")
	answer := flag.String("answer", "", "Typed answer to grade")
	serve := flag.Bool("serve", false, "Start the HTTP API")
	watch := flag.Bool("watch", false, "Ingest documents as they appear in the watch directory")
	dryRun := flag.Bool("dry-run", false, "Parse and chunk -file without embedding or storing it")
	export := flag.Bool("export", false, "Export the chromem collection to an encrypted file")
	reset := flag.Bool("reset", false, "Delete all stored chunks before anything else")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Error loading config")
	}
	setupLogger(cfg.Log)
	log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")

	if *dryRun {
		if *filePath == "" {
			log.Fatal().Msg("-dry-run needs a document passed with -file")
		}
		dryRunFile(cfg, *filePath)
		return
	}

	if *filePath == "" && *query == "" && *quizTopic == "" && *gradeTopic == "" &&
		!*serve && !*watch && !*export && !*reset {
		flag.Usage()
		os.Exit(2)
	}
	if *gradeTopic != "" && (*imagePath == "") == (*answer == "") {
		log.Fatal().Msg("-grade needs exactly one of -image or -answer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing")
	}
	defer app.Close()

	if *reset {
		if err := app.reset(ctx); err != nil {
			log.Fatal().Err(err).Msg("Error clearing documents")
		}
		log.Info().Msg("Cleared stored documents")
	}

	if *filePath != "" {
		res, err := app.dean.IngestDocument(ctx, *filePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Error ingesting document")
		}
		printPanel("Ingested", memorizedMessage(res.ChunksStored))
	}

	if *query != "" {
		reply, err := app.dean.AnswerQuestion(ctx, *query)
		if err != nil {
			log.Fatal().Err(err).Msg("Error answering question")
		}
		printPanel("Question", *query)
		printPanel("Tutor", reply.Reply)
	}

	if *quizTopic != "" {
		if err := runQuiz(ctx, app.dean, *quizTopic, os.Stdin, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("Error running quiz")
		}
	}

	if *gradeTopic != "" {
		var result *models.GradingResult
		if *imagePath != "" {
			// the grading workflow deletes the image, so grade a copy of the user's file
			var tmp string
			tmp, err = copyToTemp(grading.CleanPath(*imagePath), cfg.Server.UploadDir)
			if err == nil {
				result, err = app.dean.GradeImageSubmission(ctx, *gradeTopic, tmp)
			}
		} else {
			result, err = app.dean.GradeTextSubmission(ctx, *gradeTopic, *answer)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Error grading submission")
		}
		printGrade(result)
	}

	if *export {
		if app.chromem == nil {
			log.Fatal().Msg("-export is only supported with the chromem store")
		}
		if err := app.chromem.Export(); err != nil {
			log.Fatal().Err(err).Msg("Error exporting collection")
		}
		log.Info().Msg("Exported collection")
	}

	if *watch {
		go runWatcher(ctx, cfg.Watch, app.dean)
	}

	if *serve {
		runServer(ctx, cfg.Server, app.dean)
	} else if *watch {
		<-ctx.Done()
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
	}
}

// app holds the wired tutor and whichever store backs it
type app struct {
	dean    *rag.Dean
	chromem *chromemdb.VectorDBManager
	bunDB   *bun.DB
	dims    int
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{dims: cfg.Database.Dimensions}

	var store models.VectorStore
	switch cfg.VectorStore.Type {
	case config.StorePgvector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		a.bunDB = db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, a.bunDB, cfg.Database.Dimensions); err != nil {
			a.bunDB.Close()
			return nil, err
		}
		store = db.NewStore(a.bunDB)
	default:
		m, err := chromemdb.NewVectorDBManager(&cfg.Chromem)
		if err != nil {
			return nil, err
		}
		if cfg.Chromem.InMemory && cfg.Chromem.EncryptionKey != "" && cfg.Chromem.ExportPath != "" {
			if _, err := os.Stat(cfg.Chromem.ExportPath); err == nil {
				if err := m.Import(); err != nil {
					return nil, err
				}
				log.Info().Int("chunks", m.Count()).Msg("Imported collection")
			}
		}
		a.chromem = m
		store = m
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbeddingLLM, cfg.RAG.BatchSize)
	if err != nil {
		return nil, err
	}
	llm, err := llmservice.NewClient(&cfg.InferenceLLM)
	if err != nil {
		return nil, err
	}
	vision, err := llmservice.NewClient(&cfg.VisionLLM)
	if err != nil {
		return nil, err
	}

	prompts := prompt.NewBuilder()
	retriever := rag.NewRetriever(embedder, store)
	profiles := rag.ProfilesFromConfig(&cfg.RAG)

	a.dean = rag.NewDean(rag.Deps{
		Loader:   parser.NewLoader(),
		Chunking: chunker.Config{MaxSize: cfg.RAG.ChunkSize, Overlap: cfg.RAG.ChunkOverlap},
		Ingester: ingest.New(embedder, store, ingest.Config{
			BatchSize:   cfg.RAG.BatchSize,
			Pause:       cfg.RAG.BatchPause,
			MaxRetries:  cfg.RAG.MaxRetries,
			BaseBackoff: time.Second,
		}),
		Retriever: retriever,
		LLM:       llm,
		Grader:    grading.NewWorkflow(retriever, vision, prompts, profiles.Grading),
		Prompts:   prompts,
		Profiles:  profiles,
	})
	return a, nil
}

func (a *app) reset(ctx context.Context) error {
	if a.chromem != nil {
		return a.chromem.DeleteCollection()
	}
	if err := db.DropDocuments(ctx, a.bunDB); err != nil {
		return err
	}
	return db.InitDB(ctx, a.bunDB, a.dims)
}

func (a *app) Close() {
	if a.bunDB != nil {
		a.bunDB.Close()
	}
}

func dryRunFile(cfg *config.Config, filePath string) {
	dean := rag.NewDean(rag.Deps{
		Loader:   parser.NewLoader(),
		Chunking: chunker.Config{MaxSize: cfg.RAG.ChunkSize, Overlap: cfg.RAG.ChunkOverlap},
	})
	chunks, err := dean.LoadChunks(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	helper.PrettyPrint(os.Stdout, chunks)
	log.Info().Int("chunks", len(chunks)).Msg("Dry run complete")
}

func runWatcher(ctx context.Context, cfg config.WatchConfig, dean *rag.Dean) {
	if cfg.Dir == "" {
		log.Error().Msg("watch.dir is not set")
		return
	}
	w, err := watcher.NewWatcher(cfg.Extensions)
	if err != nil {
		log.Error().Err(err).Msg("Error creating watcher")
		return
	}
	defer w.Stop()

	events, err := w.Watch(ctx, cfg.Dir)
	if err != nil {
		log.Error().Err(err).Str("dir", cfg.Dir).Msg("Error watching directory")
		return
	}
	log.Info().Str("dir", cfg.Dir).Strs("extensions", cfg.Extensions).Msg("Watching for syllabus documents")
	watcher.Ingest(ctx, events, dean, watcher.DefaultSettle)
}

func runServer(ctx context.Context, cfg config.ServerConfig, dean *rag.Dean) {
	sessions := quiz.NewStore(cfg.SessionTTL)
	go sessions.Run(ctx, time.Minute)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(dean, sessions, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down server")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Msg("Digital Dean is online")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}
