// Package speechtest provides scriptable speech capabilities for tests.
package speechtest

import (
	"sync"

	"github.com/normanking/veriflow/internal/speech"
)

// Recognizer is a fake recognizer driven by Emit* calls.
type Recognizer struct {
	Unsupported bool
	StartErr    error

	mu        sync.Mutex
	starts    int
	stops     int
	lastLang  string
	listeners speech.Listeners[speech.RecognitionListener]
}

func (r *Recognizer) Supported() bool { return !r.Unsupported }

func (r *Recognizer) Start(lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	r.starts++
	r.lastLang = lang
	return nil
}

func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *Recognizer) Subscribe(l speech.RecognitionListener) func() {
	return r.listeners.Add(l)
}

// Starts returns how many times Start succeeded
func (r *Recognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// Stops returns how many times Stop was called
func (r *Recognizer) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// LastLang returns the language passed to the last Start
func (r *Recognizer) LastLang() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLang
}

// Listeners returns the number of attached listeners
func (r *Recognizer) Listeners() int { return r.listeners.Len() }

// EmitResult delivers a transcript followed by end, as a browser would.
func (r *Recognizer) EmitResult(transcript string) {
	for _, l := range r.listeners.Snapshot() {
		if l.OnResult != nil {
			l.OnResult(transcript)
		}
	}
	r.EmitEnd()
}

// EmitError delivers an error code
func (r *Recognizer) EmitError(code string) {
	for _, l := range r.listeners.Snapshot() {
		if l.OnError != nil {
			l.OnError(code)
		}
	}
}

// EmitEnd delivers an end event
func (r *Recognizer) EmitEnd() {
	for _, l := range r.listeners.Snapshot() {
		if l.OnEnd != nil {
			l.OnEnd()
		}
	}
}

// Synthesizer is a fake synthesizer that records utterances. Start/end events are
// delivered by the test through EmitStart/EmitEnd, or automatically with AutoFinish.
type Synthesizer struct {
	Unsupported bool
	SpeakErr    error
	AutoFinish  bool
	VoiceList   []speech.Voice

	mu         sync.Mutex
	utterances []speech.Utterance
	cancels    int
	calls      []string
	listeners  speech.Listeners[speech.SynthesisListener]
}

func (s *Synthesizer) Supported() bool { return !s.Unsupported }

func (s *Synthesizer) Speak(u speech.Utterance) error {
	s.mu.Lock()
	if s.SpeakErr != nil {
		s.mu.Unlock()
		return s.SpeakErr
	}
	s.utterances = append(s.utterances, u)
	s.calls = append(s.calls, "speak:"+u.ID)
	auto := s.AutoFinish
	s.mu.Unlock()

	if auto {
		s.EmitStart(u.ID)
		s.EmitEnd(u.ID)
	}
	return nil
}

func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	s.calls = append(s.calls, "cancel")
}

func (s *Synthesizer) Voices() []speech.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Voice(nil), s.VoiceList...)
}

func (s *Synthesizer) Subscribe(l speech.SynthesisListener) func() {
	return s.listeners.Add(l)
}

// Utterances returns everything passed to Speak
func (s *Synthesizer) Utterances() []speech.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Utterance(nil), s.utterances...)
}

// Last returns the most recent utterance
func (s *Synthesizer) Last() (speech.Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.utterances) == 0 {
		return speech.Utterance{}, false
	}
	return s.utterances[len(s.utterances)-1], true
}

// Cancels returns how many times Cancel was called
func (s *Synthesizer) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// Calls returns the Speak and Cancel calls in arrival order, as "speak:<id>" or "cancel".
func (s *Synthesizer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Listeners returns the number of attached listeners
func (s *Synthesizer) Listeners() int { return s.listeners.Len() }

func (s *Synthesizer) EmitStart(id string) {
	for _, l := range s.listeners.Snapshot() {
		if l.OnStart != nil {
			l.OnStart(id)
		}
	}
}

func (s *Synthesizer) EmitEnd(id string) {
	for _, l := range s.listeners.Snapshot() {
		if l.OnEnd != nil {
			l.OnEnd(id)
		}
	}
}

// SetVoices replaces the voice list and notifies listeners
func (s *Synthesizer) SetVoices(voices []speech.Voice) {
	s.mu.Lock()
	s.VoiceList = append([]speech.Voice(nil), voices...)
	s.mu.Unlock()
	for _, l := range s.listeners.Snapshot() {
		if l.OnVoicesChanged != nil {
			l.OnVoicesChanged(voices)
		}
	}
}
