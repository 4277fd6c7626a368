package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"

	"github.com/xhad/askdoc/internal/models"
	"github.com/xhad/askdoc/internal/types"
	"github.com/xhad/askdoc/pkg/session"
)

//go:embed templates/index.html
var templates embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Pipeline is the part of a session the web UI drives.
type Pipeline interface {
	Upload(ctx context.Context, name string, data []byte) (session.UploadResult, error)
	Ask(ctx context.Context, question string) (models.Answer, error)
	Reset() error
	Status() session.Status
}

type Config struct {
	Title       string
	MaxUploadMB int
}

type Server struct {
	config   Config
	pipeline Pipeline
	page     *template.Template
	markdown goldmark.Markdown
}

type banner struct {
	Kind string // success, error or info
	Text string
}

type pageData struct {
	Title    string
	Status   session.Status
	Ready    bool
	Banners  []banner
	Question string
	Answer   template.HTML
}

func New(config Config, pipeline Pipeline) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("server requires a pipeline")
	}
	if config.Title == "" {
		config.Title = "AskDoc RAG"
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 200
	}

	page, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	return &Server{
		config:   config,
		pipeline: pipeline,
		page:     page,
		markdown: goldmark.New(),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting web server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("shutting down web server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, s.newPage())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.MaxUploadMB)<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File is larger than %d MB.", s.config.MaxUploadMB))
			return
		}
		s.renderError(w, http.StatusBadRequest, "Please choose a PDF file to upload.")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		s.renderError(w, http.StatusBadRequest, fmt.Sprintf("%s: %s", types.ErrNotPDF, name))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.renderError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
		return
	}

	res, err := s.pipeline.Upload(r.Context(), name, data)
	if err != nil {
		page := s.newPage()
		page.Banners = []banner{
			{Kind: "error", Text: fmt.Sprintf("Error processing PDF: %v", err)},
			{Kind: "error", Text: "Failed to process document. Please try again."},
		}
		s.render(w, statusFor(err), page)
		return
	}

	page := s.newPage()
	if res.Cached {
		page.Banners = []banner{{Kind: "info", Text: fmt.Sprintf("%s is already processed. You can ask questions.", name)}}
	} else {
		page.Banners = []banner{{Kind: "success", Text: "Document processed! You can now ask questions."}}
	}
	s.render(w, http.StatusOK, page)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := r.FormValue("question")

	answer, err := s.pipeline.Ask(r.Context(), question)
	if err != nil {
		page := s.newPage()
		page.Question = question
		page.Banners = append(page.Banners, banner{Kind: "error", Text: fmt.Sprintf("Error: %v", err)})
		s.render(w, statusFor(err), page)
		return
	}

	html, err := s.renderMarkdown(answer.Text)
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, fmt.Sprintf("Error: %v", err))
		return
	}

	page := s.newPage()
	page.Question = answer.Question
	page.Answer = html
	s.render(w, http.StatusOK, page)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Reset(); err != nil {
		s.renderError(w, statusFor(err), fmt.Sprintf("Error: %v", err))
		return
	}
	s.render(w, http.StatusOK, s.newPage())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.pipeline.Status()); err != nil {
		log.Error().Err(err).Msg("failed to encode status")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("error reading message")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(conn, "error", "invalid message")
			continue
		}

		s.handleMessage(r.Context(), conn, msg)
	}
}

// handleMessage answers one question. Messages on a connection are handled
// in order; the session rejects overlapping work anyway.
func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	if msg.Type != "question" {
		s.sendMessage(conn, "error", fmt.Sprintf("unsupported message type %q", msg.Type))
		return
	}

	s.sendMessage(conn, "status", "Searching for the answer...")

	answer, err := s.pipeline.Ask(ctx, msg.Content)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err))
		return
	}

	html, err := s.renderMarkdown(answer.Text)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err))
		return
	}

	reply := Message{
		Type:    "response",
		Content: answer.Text,
		Data:    map[string]string{"html": string(html)},
	}
	if err := conn.WriteJSON(reply); err != nil {
		log.Error().Err(err).Msg("error sending message")
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType string, content string) {
	msg := Message{
		Type:    msgType,
		Content: content,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Error().Err(err).Msg("error sending message")
	}
}

func (s *Server) newPage() pageData {
	st := s.pipeline.Status()
	page := pageData{
		Title:  s.config.Title,
		Status: st,
		Ready:  st.State == session.Ready,
	}
	if st.State == session.Idle {
		page.Banners = append(page.Banners, banner{Kind: "info", Text: "Please upload a PDF document in the sidebar to get started."})
	}
	return page
}

func (s *Server) renderError(w http.ResponseWriter, status int, text string) {
	page := s.newPage()
	page.Banners = append([]banner{{Kind: "error", Text: text}}, page.Banners...)
	s.render(w, status, page)
}

func (s *Server) render(w http.ResponseWriter, status int, page pageData) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, page); err != nil {
		log.Error().Err(err).Msg("failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderMarkdown converts model output to HTML. Raw HTML in the output is
// not passed through.
func (s *Server) renderMarkdown(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render answer: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrBusy), errors.Is(err, types.ErrNoDocument):
		return http.StatusConflict
	case errors.Is(err, types.ErrNotPDF), errors.Is(err, types.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrEmbedding), errors.Is(err, types.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
