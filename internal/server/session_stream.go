package server

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sstraus/tuicommander/internal/events"
	"github.com/sstraus/tuicommander/internal/parser"
	"github.com/sstraus/tuicommander/internal/ptyengine"
)

// wireFrame mirrors spec.md §6's server→client frame shapes exactly: one
// struct serialized to JSON per message, with only the fields relevant to
// `t` populated (json:",omitempty" keeps the others out of the wire bytes).
type wireFrame struct {
	T          string          `json:"t"`
	Seq        uint64          `json:"seq,omitempty"`
	B64        string          `json:"b64,omitempty"`
	Event      json.RawMessage `json:"event,omitempty"`
	Name       string          `json:"name,omitempty"`
	Code       *int            `json:"code,omitempty"`
	LostChunks int             `json:"lost_chunks,omitempty"`
	Catchup    bool            `json:"catchup,omitempty"`
}

type clientFrame struct {
	T    string `json:"t"`
	B64  string `json:"b64,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
}

var sessionUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleSessionWS serves the new per-session WebSocket endpoint
// (SPEC_FULL.md §4.6 "/ws/terminal/v2/{sessionID}"), sharing the
// ptyengine subscription fan-out with handleSessionSSE via commandSurface.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sub, err := s.commandSurface.Subscribe(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := sessionUpgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Unsubscribe()
		return
	}
	defer conn.Close()
	defer sub.Unsubscribe()

	if err := conn.WriteJSON(wireFrame{T: "opened", Seq: sub.SnapshotSeq}); err != nil {
		return
	}
	if len(sub.Snapshot) > 0 {
		frame := wireFrame{T: "chunk", Seq: 0, B64: base64.StdEncoding.EncodeToString(sub.Snapshot), Catchup: true}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
	if sub.Foreground != "" {
		if err := conn.WriteJSON(wireFrame{T: "foreground", Name: sub.Foreground}); err != nil {
			return
		}
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for msg := range sub.Messages {
			frame, ok := toWireFrame(msg)
			if !ok {
				continue
			}
			if msg.Kind == ptyengine.SubMsgLag && s.eventBus != nil {
				_ = s.eventBus.Publish(events.Event{Type: events.EventSessionLagged, SessionID: sessionID})
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}()

	for {
		var cf clientFrame
		if err := conn.ReadJSON(&cf); err != nil {
			break
		}
		switch cf.T {
		case "write":
			data, err := base64.StdEncoding.DecodeString(cf.B64)
			if err == nil {
				_, _ = s.commandSurface.Write(sessionID, data)
			}
		case "resize":
			_ = s.commandSurface.Resize(sessionID, cf.Rows, cf.Cols)
		case "pause":
			_ = s.commandSurface.Pause(sessionID)
		case "resume":
			_ = s.commandSurface.Resume(sessionID)
		}
	}

	<-writeDone
}

// handleSessionSSE serves the MCP-over-HTTP SSE endpoint (spec.md §4.6):
// same payload types as the WebSocket, read-only — writes go through REST.
func (s *Server) handleSessionSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sub, err := s.commandSurface.Subscribe(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer sub.Unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSE := func(frame wireFrame) bool {
		b, err := json.Marshal(frame)
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return false
		}
		if _, err := w.Write(b); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeSSE(wireFrame{T: "opened", Seq: sub.SnapshotSeq}) {
		return
	}
	if len(sub.Snapshot) > 0 {
		if !writeSSE(wireFrame{T: "chunk", B64: base64.StdEncoding.EncodeToString(sub.Snapshot), Catchup: true}) {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages:
			if !ok {
				return
			}
			frame, ok := toWireFrame(msg)
			if !ok {
				continue
			}
			if !writeSSE(frame) {
				return
			}
		}
	}
}

func toWireFrame(msg ptyengine.SubMsg) (wireFrame, bool) {
	switch msg.Kind {
	case ptyengine.SubMsgChunk:
		return wireFrame{T: "chunk", Seq: msg.Seq, B64: base64.StdEncoding.EncodeToString(msg.Bytes)}, true
	case ptyengine.SubMsgEvent:
		raw, err := parser.MarshalEvent(msg.Event)
		if err != nil {
			return wireFrame{}, false
		}
		return wireFrame{T: "event", Seq: msg.Seq, Event: raw}, true
	case ptyengine.SubMsgForeground:
		return wireFrame{T: "foreground", Name: msg.Foreground}, true
	case ptyengine.SubMsgExit:
		return wireFrame{T: "exit", Code: msg.ExitCode}, true
	case ptyengine.SubMsgLag:
		return wireFrame{T: "lag", LostChunks: msg.LostChunks}, true
	default:
		return wireFrame{}, false
	}
}

// --- REST endpoints for session lifecycle and writes (spec.md §6, SSE
// clients cannot send over the stream itself) ---

func (s *Server) apiSessionList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.commandSurface.List())
}

func (s *Server) apiSessionCreate(w http.ResponseWriter, r *http.Request) {
	var spec ptyengine.CreateSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if spec.Rows == 0 || spec.Cols == 0 {
		cfg := s.ptyEngineConfig()
		if spec.Rows == 0 {
			spec.Rows = cfg.DefaultRows
		}
		if spec.Cols == 0 {
			spec.Cols = cfg.DefaultCols
		}
	}
	id, err := s.commandSurface.Create(spec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.eventBus != nil {
		_ = s.eventBus.Publish(events.Event{Type: events.EventSessionOpened, SessionID: id})
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) apiSessionSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	n := 0
	if v := r.URL.Query().Get("bytes"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	data, seq, foreground, err := s.commandSurface.Snapshot(sessionID, n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":        seq,
		"foreground": foreground,
		"b64":        base64.StdEncoding.EncodeToString(data),
	})
}

func (s *Server) apiSessionWrite(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var body struct {
		B64 string `json:"b64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.B64)
	if err != nil {
		http.Error(w, "invalid base64 payload", http.StatusBadRequest)
		return
	}
	if _, err := s.commandSurface.Write(sessionID, data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiSessionResize(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var body struct {
		Rows uint16 `json:"rows"`
		Cols uint16 `json:"cols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.commandSurface.Resize(sessionID, body.Rows, body.Cols); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiSessionPause(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.commandSurface.Pause(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiSessionResume(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.commandSurface.Resume(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiSessionClose(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.commandSurface.Close(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.eventBus != nil {
		_ = s.eventBus.Publish(events.Event{Type: events.EventSessionClosed, SessionID: sessionID})
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("session_stream: failed to encode response: %v", err)
	}
}
