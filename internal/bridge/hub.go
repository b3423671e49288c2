// Package bridge connects browsers over WebSocket. It pushes session events to every
// client and relays speech commands to the browser that offers the capability.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/normanking/veriflow/internal/logging"
	"github.com/normanking/veriflow/internal/speech"
)

// Message types sent by the server
const (
	TypeHello            = "hello"
	TypeEvent            = "event"
	TypeRecognitionStart = "recognition.start"
	TypeRecognitionStop  = "recognition.stop"
	TypeSynthesisSpeak   = "synthesis.speak"
	TypeSynthesisCancel  = "synthesis.cancel"
)

// Message types sent by the browser
const (
	TypeCapabilities      = "capabilities"
	TypeRecognitionResult = "recognition.result"
	TypeRecognitionError  = "recognition.error"
	TypeRecognitionEnd    = "recognition.end"
	TypeSynthesisStart    = "synthesis.start"
	TypeSynthesisEnd      = "synthesis.end"
	TypeSynthesisVoices   = "synthesis.voices"
)

// Message is the single envelope used in both directions.
type Message struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`

	// Event pushes
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`

	// Speech commands and events
	Lang        string            `json:"lang,omitempty"`
	Transcript  string            `json:"transcript,omitempty"`
	Code        string            `json:"code,omitempty"`
	ID          string            `json:"id,omitempty"`
	Utterance   *speech.Utterance `json:"utterance,omitempty"`
	Voices      []speech.Voice    `json:"voices,omitempty"`
	Recognition bool              `json:"recognition,omitempty"`
	Synthesis   bool              `json:"synthesis,omitempty"`
}

const (
	sendBuffer     = 64
	maxMessageSize = 64 * 1024
	writeWait      = 10 * time.Second
)

// ErrSlowClient is logged when a client's send buffer overflows and it is dropped.
var ErrSlowClient = errors.New("client send buffer full")

type session struct {
	id   string
	conn *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once

	recognition bool
	synthesis   bool
	voices      []speech.Voice
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Hub tracks connected browsers.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	order    []string

	log          *logging.Logger
	pingInterval time.Duration
	onCount      func(n int)

	rec *Recognizer
	syn *Synthesizer
}

// Option configures a Hub
type Option func(*Hub)

// WithPingInterval sets how often idle connections are pinged. The read deadline is
// twice the interval.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) { h.pingInterval = d }
}

// WithConnCountHandler is called with the number of sessions after each connect and
// disconnect.
func WithConnCountHandler(fn func(n int)) Option {
	return func(h *Hub) { h.onCount = fn }
}

// NewHub creates an empty hub
func NewHub(log *logging.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logging.NewNop()
	}
	h := &Hub{
		sessions:     make(map[string]*session),
		log:          log,
		pingInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.rec = &Recognizer{hub: h}
	h.syn = &Synthesizer{hub: h}
	return h
}

// Recognizer returns the browser-backed recognizer
func (h *Hub) Recognizer() *Recognizer { return h.rec }

// Synthesizer returns the browser-backed synthesizer
func (h *Hub) Synthesizer() *Synthesizer { return h.syn }

// Sessions returns the number of connected browsers
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Serve runs one connection until the peer goes away or ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) error {
	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}
	h.add(s)
	defer h.remove(s)

	s.send <- Message{Type: TypeHello, Session: s.id}

	go h.writeLoop(s)
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()

	return h.readLoop(s)
}

// Broadcast queues msg for every session. Slow sessions are dropped.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.enqueue(s, msg)
	}
}

// BroadcastEvent pushes a named event with data to every session.
func (h *Hub) BroadcastEvent(event string, data any) {
	h.Broadcast(Message{Type: TypeEvent, Event: event, Data: data})
}

func (h *Hub) enqueue(s *session, msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		// Close first: the warning may itself be broadcast back through enqueue.
		s.close()
		h.log.Warn("bridge", "Dropping slow client", map[string]interface{}{"session": s.id, "error": ErrSlowClient.Error()})
		return false
	}
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.order = append(h.order, s.id)
	n := len(h.sessions)
	h.mu.Unlock()

	h.log.Info("bridge", "Browser connected", map[string]interface{}{"session": s.id})
	if h.onCount != nil {
		h.onCount(n)
	}
}

func (h *Hub) remove(s *session) {
	s.close()

	h.mu.Lock()
	delete(h.sessions, s.id)
	for i, id := range h.order {
		if id == s.id {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
	n := len(h.sessions)
	h.mu.Unlock()

	h.log.Info("bridge", "Browser disconnected", map[string]interface{}{"session": s.id})
	h.rec.sessionGone(s.id)
	h.syn.sessionGone(s.id)
	if h.onCount != nil {
		h.onCount(n)
	}
}

// active returns the most recently connected session matching ok.
func (h *Hub) active(ok func(*session) bool) *session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.order) - 1; i >= 0; i-- {
		if s := h.sessions[h.order[i]]; s != nil && ok(s) {
			return s
		}
	}
	return nil
}

func (h *Hub) readLoop(s *session) error {
	s.conn.SetReadLimit(maxMessageSize)
	pongWait := 2 * h.pingInterval
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			h.log.Warn("bridge", "WebSocket read error", map[string]interface{}{"session": s.id, "error": err.Error()})
			return err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handle(s, msg)
	}
}

func (h *Hub) writeLoop(s *session) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				h.log.Warn("bridge", "WebSocket write error", map[string]interface{}{"session": s.id, "error": err.Error()})
				s.close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.close()
				return
			}
		}
	}
}

func (h *Hub) handle(s *session, msg Message) {
	switch msg.Type {
	case TypeCapabilities:
		h.mu.Lock()
		s.recognition = msg.Recognition
		s.synthesis = msg.Synthesis
		s.voices = append([]speech.Voice(nil), msg.Voices...)
		h.mu.Unlock()
		h.log.Debug("bridge", "Browser capabilities", map[string]interface{}{
			"session":     s.id,
			"recognition": msg.Recognition,
			"synthesis":   msg.Synthesis,
			"voices":      len(msg.Voices),
		})
		if msg.Synthesis && len(msg.Voices) > 0 {
			h.syn.voicesChanged(s.id)
		}
	case TypeSynthesisVoices:
		h.mu.Lock()
		s.voices = append([]speech.Voice(nil), msg.Voices...)
		h.mu.Unlock()
		h.syn.voicesChanged(s.id)
	case TypeRecognitionResult:
		h.rec.result(s.id, msg.Transcript)
	case TypeRecognitionError:
		h.rec.fail(s.id, msg.Code)
	case TypeRecognitionEnd:
		h.rec.end(s.id)
	case TypeSynthesisStart:
		h.syn.started(s.id, msg.ID)
	case TypeSynthesisEnd:
		h.syn.ended(s.id, msg.ID)
	default:
		h.log.Debug("bridge", "Ignoring message", map[string]interface{}{"session": s.id, "type": msg.Type})
	}
}

// sendTo queues msg for the session with id.
func (h *Hub) sendTo(id string, msg Message) bool {
	h.mu.RLock()
	s := h.sessions[id]
	h.mu.RUnlock()
	if s == nil {
		return false
	}
	return h.enqueue(s, msg)
}
