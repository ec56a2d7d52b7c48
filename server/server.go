package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xhad/ask/pkg/extract"
	"github.com/xhad/ask/pkg/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the websocket envelope. Type is one of "ingest",
// "question", "status", "document", "answers" or "error".
type Message struct {
	Type    string                 `json:"type"`
	Content string                 `json:"content"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type ingestRequest struct {
	Source string `json:"source"`
}

type ingestResponse struct {
	ContentID string `json:"content_id"`
}

// answerRequest targets one document. Document is the handle the
// configured id mode expects: the source reference in reference mode,
// the content id returned by ingestion in content mode.
type answerRequest struct {
	Document  string   `json:"document"`
	Questions []string `json:"questions"`
	TopK      int      `json:"top_k,omitempty"`
}

type answerResponse struct {
	Answers []string `json:"answers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the ingestion and answering pipeline over HTTP and
// websocket. It holds no pipeline state of its own.
type Server struct {
	addr     string
	ingestor *pipeline.Ingestor
	answerer *pipeline.Answerer
}

func New(addr string, ingestor *pipeline.Ingestor, answerer *pipeline.Answerer) *Server {
	return &Server{
		addr:     addr,
		ingestor: ingestor,
		answerer: answerer,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/answer", s.handleAnswer)
	mux.HandleFunc("/api/documents", s.handleDeleteDocument)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *Server) Run() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Starting server on %s", s.addr)
	return srv.ListenAndServe()
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	contentID, err := s.ingestor.Ingest(r.Context(), req.Source)
	if err != nil {
		writeError(w, ingestStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{ContentID: contentID})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Document) == "" {
		writeError(w, http.StatusBadRequest, "document is required")
		return
	}

	answers, err := s.answerer.Answer(r.Context(), req.Document, req.Questions, req.TopK)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{Answers: answers})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "DELETE required")
		return
	}

	// Document handles are often URLs, which cannot survive as a path
	// segment, so the handle travels in the query string.
	document := r.URL.Query().Get("document")
	if document == "" {
		writeError(w, http.StatusBadRequest, "document is required")
		return
	}

	if err := s.ingestor.Purge(r.Context(), document); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The last ingested document is the default target for questions
	// on this connection.
	var document string

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.send(conn, Message{Type: "error", Content: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ingest":
			s.send(conn, Message{Type: "status", Content: "ingesting " + msg.Content})
			contentID, err := s.ingestor.Ingest(r.Context(), msg.Content)
			if err != nil {
				s.send(conn, Message{Type: "error", Content: err.Error()})
				continue
			}
			// Answer re-derives the namespace from the handle, so the
			// handle must be whatever the id mode expects, never the
			// content id in reference mode.
			document = s.ingestor.Handle(msg.Content, contentID)
			s.send(conn, Message{
				Type:    "document",
				Content: document,
				Data:    map[string]interface{}{"content_id": contentID},
			})
		case "question":
			target := document
			if d, ok := msg.Data["document"].(string); ok && d != "" {
				target = d
			}
			if target == "" {
				s.send(conn, Message{Type: "error", Content: "no document ingested yet"})
				continue
			}
			answers, err := s.answerer.Answer(r.Context(), target, []string{msg.Content}, 0)
			if err != nil {
				s.send(conn, Message{Type: "error", Content: err.Error()})
				continue
			}
			s.send(conn, Message{Type: "answers", Content: answers[0]})
		default:
			s.send(conn, Message{Type: "error", Content: "unknown message type: " + msg.Type})
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func ingestStatus(err error) int {
	if errors.Is(err, extract.ErrUnsupportedFormat) {
		return http.StatusUnsupportedMediaType
	}
	if errors.Is(err, extract.ErrExtraction) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
