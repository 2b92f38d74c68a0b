package api

import (
	"context"
	"net/http"

	"digital-dean/internal/config"
	"digital-dean/internal/models"
	"digital-dean/internal/quiz"
	"digital-dean/internal/rag"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the tutoring core the HTTP layer drives
type Service interface {
	IngestDocumentAs(ctx context.Context, path, source string) (rag.IngestResult, error)
	AnswerQuestion(ctx context.Context, question string) (rag.Reply, error)
	GenerateQuiz(ctx context.Context, topic string) (*quiz.Session, error)
	GradeImageSubmission(ctx context.Context, topic, imagePath string) (*models.GradingResult, error)
	GradeTextSubmission(ctx context.Context, topic, submission string) (*models.GradingResult, error)
}

// Server is the HTTP API for the tutor
type Server struct {
	router   chi.Router
	dean     Service
	sessions *quiz.Store
	cfg      config.ServerConfig
}

func NewServer(dean Service, sessions *quiz.Store, cfg config.ServerConfig) *Server {
	s := &Server{
		dean:     dean,
		sessions: sessions,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/upload", s.handleUpload)
	r.Post("/chat", s.handleChat)

	r.Route("/quiz", func(r chi.Router) {
		r.Post("/", s.handleCreateQuiz)
		r.Get("/{sessionID}", s.handleGetQuiz)
		r.Post("/{sessionID}/answers", s.handleAnswer)
		r.Delete("/{sessionID}", s.handleAbandonQuiz)
	})

	r.Post("/grade", s.handleGradeImage)
	r.Post("/grade/text", s.handleGradeText)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "online"})
}
