package bridge

import (
	"sync"

	"github.com/normanking/veriflow/internal/speech"
)

var (
	_ speech.Recognizer  = (*Recognizer)(nil)
	_ speech.Synthesizer = (*Synthesizer)(nil)
)

// Recognizer relays recognition to the most recent browser that offers it.
type Recognizer struct {
	hub       *Hub
	listeners speech.Listeners[speech.RecognitionListener]

	mu    sync.Mutex
	owner string
}

// Supported reports whether a connected browser can recognize speech
func (r *Recognizer) Supported() bool {
	return r.hub.active(func(s *session) bool { return s.recognition }) != nil
}

// Start asks the active browser to listen in lang.
func (r *Recognizer) Start(lang string) error {
	s := r.hub.active(func(s *session) bool { return s.recognition })
	if s == nil {
		return speech.ErrUnsupported
	}
	r.mu.Lock()
	r.owner = s.id
	r.mu.Unlock()

	if !r.hub.sendTo(s.id, Message{Type: TypeRecognitionStart, Lang: lang}) {
		r.mu.Lock()
		r.owner = ""
		r.mu.Unlock()
		return speech.ErrUnsupported
	}
	return nil
}

// Stop asks the listening browser to stop.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	owner := r.owner
	r.mu.Unlock()
	if owner == "" {
		return speech.ErrNotStarted
	}
	r.hub.sendTo(owner, Message{Type: TypeRecognitionStop})
	return nil
}

// Subscribe implements speech.Recognizer
func (r *Recognizer) Subscribe(l speech.RecognitionListener) func() {
	return r.listeners.Add(l)
}

// fromOwner reports whether sid started the current recognition. end also releases it.
func (r *Recognizer) fromOwner(sid string, release bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == "" || r.owner != sid {
		return false
	}
	if release {
		r.owner = ""
	}
	return true
}

func (r *Recognizer) result(sid, transcript string) {
	if !r.fromOwner(sid, false) {
		return
	}
	for _, l := range r.listeners.Snapshot() {
		if l.OnResult != nil {
			l.OnResult(transcript)
		}
	}
}

func (r *Recognizer) fail(sid, code string) {
	if !r.fromOwner(sid, false) {
		return
	}
	for _, l := range r.listeners.Snapshot() {
		if l.OnError != nil {
			l.OnError(code)
		}
	}
}

func (r *Recognizer) end(sid string) {
	if !r.fromOwner(sid, true) {
		return
	}
	for _, l := range r.listeners.Snapshot() {
		if l.OnEnd != nil {
			l.OnEnd()
		}
	}
}

// sessionGone ends a recognition whose browser disconnected.
func (r *Recognizer) sessionGone(sid string) {
	r.end(sid)
}

// Synthesizer relays speech output to the most recent browser that offers it.
type Synthesizer struct {
	hub       *Hub
	listeners speech.Listeners[speech.SynthesisListener]

	mu      sync.Mutex
	owner   string
	current string
}

// Supported reports whether a connected browser can speak
func (s *Synthesizer) Supported() bool {
	return s.hub.active(func(ss *session) bool { return ss.synthesis }) != nil
}

// Speak sends u to the active browser.
func (s *Synthesizer) Speak(u speech.Utterance) error {
	target := s.hub.active(func(ss *session) bool { return ss.synthesis })
	if target == nil {
		return speech.ErrUnsupported
	}
	s.mu.Lock()
	s.owner = target.id
	s.current = u.ID
	s.mu.Unlock()

	utt := u
	if !s.hub.sendTo(target.id, Message{Type: TypeSynthesisSpeak, ID: u.ID, Utterance: &utt}) {
		s.mu.Lock()
		s.owner, s.current = "", ""
		s.mu.Unlock()
		return speech.ErrUnsupported
	}
	return nil
}

// Cancel tells the speaking browser to stop.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	owner := s.owner
	s.owner, s.current = "", ""
	s.mu.Unlock()
	if owner != "" {
		s.hub.sendTo(owner, Message{Type: TypeSynthesisCancel})
	}
}

// Voices returns the active browser's voices
func (s *Synthesizer) Voices() []speech.Voice {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	for i := len(s.hub.order) - 1; i >= 0; i-- {
		if ss := s.hub.sessions[s.hub.order[i]]; ss != nil && ss.synthesis {
			return append([]speech.Voice(nil), ss.voices...)
		}
	}
	return nil
}

// Subscribe implements speech.Synthesizer
func (s *Synthesizer) Subscribe(l speech.SynthesisListener) func() {
	return s.listeners.Add(l)
}

func (s *Synthesizer) started(sid, id string) {
	s.mu.Lock()
	ok := s.owner == sid && s.current == id
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, l := range s.listeners.Snapshot() {
		if l.OnStart != nil {
			l.OnStart(id)
		}
	}
}

func (s *Synthesizer) ended(sid, id string) {
	s.mu.Lock()
	ok := s.owner == sid && s.current == id
	if ok {
		s.owner, s.current = "", ""
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, l := range s.listeners.Snapshot() {
		if l.OnEnd != nil {
			l.OnEnd(id)
		}
	}
}

func (s *Synthesizer) voicesChanged(string) {
	voices := s.Voices()
	for _, l := range s.listeners.Snapshot() {
		if l.OnVoicesChanged != nil {
			l.OnVoicesChanged(voices)
		}
	}
}

// sessionGone ends an utterance whose browser disconnected.
func (s *Synthesizer) sessionGone(sid string) {
	s.mu.Lock()
	id := s.current
	owner := s.owner
	s.mu.Unlock()
	if owner == sid && id != "" {
		s.ended(sid, id)
	}
}
