package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"digital-dean/internal/helper"
	"digital-dean/internal/models"
	"digital-dean/internal/parser"
	"digital-dean/internal/quiz"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()

	if !parser.Supported(header.Filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(header.Filename)), http.StatusBadRequest)
		return
	}
	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		jsonError(w, "failed to save upload", http.StatusInternalServerError)
		return
	}
	defer removeUpload(path)

	res, err := s.dean.IngestDocumentAs(coreContext(r), path, filepath.Base(header.Filename))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chunks_stored": res.ChunksStored,
		"message":       fmt.Sprintf("Successfully memorized %d knowledge chunks.", res.ChunksStored),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}
	reply, err := s.dean.AnswerQuestion(coreContext(r), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		jsonError(w, "topic is required", http.StatusBadRequest)
		return
	}
	session, err := s.dean.GenerateQuiz(coreContext(r), req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	s.sessions.Put(session)
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Index  *int   `json:"index"`
		Answer string `json:"answer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Index == nil || strings.TrimSpace(req.Answer) == "" {
		jsonError(w, "index and answer are required", http.StatusBadRequest)
		return
	}
	outcome, err := session.SubmitAnswer(*req.Index, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	snap := session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"correct":        outcome.Correct,
		"correct_answer": outcome.CorrectAnswer,
		"state":          snap.State,
		"correct_count":  snap.CorrectCount,
		"total":          snap.Total,
		"score":          snap.Score,
	})
}

func (s *Server) handleAbandonQuiz(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	session.Abandon()
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleGradeImage(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.formFile(w, r, "image")
	if !ok {
		return
	}
	defer file.Close()

	topic := strings.TrimSpace(r.FormValue("topic"))
	if topic == "" {
		jsonError(w, "topic is required", http.StatusBadRequest)
		return
	}
	if !imageExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		jsonError(w, "image must be png, jpeg, gif or webp", http.StatusBadRequest)
		return
	}
	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		jsonError(w, "failed to save upload", http.StatusInternalServerError)
		return
	}

	// the grading workflow owns the saved file from here and deletes it
	result, err := s.dean.GradeImageSubmission(coreContext(r), topic, path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGradeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic  string `json:"topic"`
		Answer string `json:"answer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Topic) == "" || strings.TrimSpace(req.Answer) == "" {
		jsonError(w, "topic and answer are required", http.StatusBadRequest)
		return
	}
	result, err := s.dean.GradeTextSubmission(coreContext(r), req.Topic, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	maxBytes := s.cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		jsonError(w, field+" is required", http.StatusBadRequest)
		return nil, nil, false
	}
	if header.Size > maxBytes {
		file.Close()
		jsonError(w, fmt.Sprintf("file exceeds max size (%d MB)", s.cfg.MaxUploadMB), http.StatusRequestEntityTooLarge)
		return nil, nil, false
	}
	return file, header, true
}

// saveUpload copies src to a unique path under the upload dir. On failure nothing is left behind.
func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}
	path, err := helper.UniquePath(s.cfg.UploadDir, filename)
	if err != nil {
		return "", err
	}
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		removeUpload(path)
		return "", err
	}
	return path, nil
}

func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(fmt.Errorf("%w: %w", models.ErrResourceCleanup, err)).Str("path", path).Msg("Failed to delete upload")
	}
}

// coreContext keeps request values but not cancellation: a client that hangs up must not
// abort an ingestion or grading half way.
func coreContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps the error taxonomy onto HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, models.ErrNoSyllabusContext):
		status, msg = http.StatusNotFound, "Topic not found in syllabus."
	case errors.Is(err, models.ErrNoContextFound):
		status, msg = http.StatusNotFound, "Topic not found in syllabus."
	case errors.Is(err, quiz.ErrSessionNotFound):
		status, msg = http.StatusNotFound, "Quiz session not found."
	case errors.Is(err, models.ErrImageUnreadable):
		status, msg = http.StatusUnprocessableEntity, "The image could not be read."
	case errors.Is(err, models.ErrUnreadableDocument):
		status, msg = http.StatusUnprocessableEntity, "The document could not be read."
	case errors.Is(err, models.ErrMalformedOutput):
		status, msg = http.StatusBadGateway, "The model reply could not be understood."
	case errors.Is(err, models.ErrGeneration):
		status, msg = http.StatusBadGateway, "The model is unavailable."
	case errors.Is(err, quiz.ErrAlreadyAnswered):
		status, msg = http.StatusConflict, "Question already answered."
	case errors.Is(err, quiz.ErrSessionClosed):
		status, msg = http.StatusConflict, "Quiz session is closed."
	case errors.Is(err, quiz.ErrQuestionIndex):
		status, msg = http.StatusBadRequest, "Question index out of range."
	case errors.Is(err, quiz.ErrInvalidChoice):
		status, msg = http.StatusBadRequest, "Answer with an option letter."
	case errors.Is(err, models.ErrWrite):
		status, msg = http.StatusInternalServerError, "Failed to store the document."
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	jsonError(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
