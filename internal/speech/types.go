// Package speech provides uniform start/stop/speak control over pluggable speech
// recognition and synthesis capabilities.
package speech

import (
	"errors"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Common errors
var (
	ErrUnsupported = errors.New("speech capability unsupported")
	ErrNotStarted  = errors.New("recognition not started")
)

// Rate limits for synthesis
const (
	MinRate     = 0.5
	MaxRate     = 2.0
	DefaultRate = 1.0
)

// ClampRate limits a synthesis rate to [MinRate, MaxRate].
func ClampRate(rate float64) float64 {
	return lo.Clamp(rate, MinRate, MaxRate)
}

// Voice is an available synthesis voice
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// RecognitionListener receives recognizer events. Nil fields are skipped.
type RecognitionListener struct {
	// OnResult delivers the final transcript of a one-shot recognition.
	OnResult func(transcript string)
	// OnError delivers a recognizer error code such as "no-speech".
	OnError func(code string)
	// OnEnd fires when recognition stops for any reason.
	OnEnd func()
}

// Recognizer is a one-shot speech-to-text capability.
type Recognizer interface {
	Supported() bool
	Start(lang string) error
	Stop() error
	Subscribe(l RecognitionListener) (unsubscribe func())
}

// Utterance is one piece of text to speak
type Utterance struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Rate    float64 `json:"rate"`
	VoiceID string  `json:"voice_id,omitempty"`
	Lang    string  `json:"lang,omitempty"`
}

// SynthesisListener receives synthesizer events. Nil fields are skipped.
type SynthesisListener struct {
	OnStart         func(id string)
	OnEnd           func(id string)
	OnVoicesChanged func(voices []Voice)
}

// Synthesizer is a text-to-speech capability.
type Synthesizer interface {
	Supported() bool
	Speak(u Utterance) error
	Cancel()
	Voices() []Voice
	Subscribe(l SynthesisListener) (unsubscribe func())
}

// DefaultVoice picks a Turkish voice, then "Google US English", then any English
// voice, then the first one.
func DefaultVoice(voices []Voice) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	preferences := []func(Voice) bool{
		func(v Voice) bool { return strings.HasPrefix(strings.ToLower(v.Language), "tr") },
		func(v Voice) bool { return v.Name == "Google US English" },
		func(v Voice) bool { return strings.HasPrefix(strings.ToLower(v.Language), "en") },
	}
	for _, pref := range preferences {
		if v, ok := lo.Find(voices, pref); ok {
			return v, true
		}
	}
	return voices[0], true
}

// Listeners is a concurrency-safe listener registry for capability implementations.
type Listeners[T any] struct {
	mu     sync.Mutex
	nextID uint64
	items  map[uint64]T
	order  []uint64
}

// Add registers l and returns an idempotent remover.
func (ls *Listeners[T]) Add(l T) func() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.items == nil {
		ls.items = make(map[uint64]T)
	}
	ls.nextID++
	id := ls.nextID
	ls.items[id] = l
	ls.order = append(ls.order, id)
	return func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		delete(ls.items, id)
		ls.order = lo.Without(ls.order, id)
	}
}

// Snapshot returns the registered listeners in registration order.
func (ls *Listeners[T]) Snapshot() []T {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]T, 0, len(ls.order))
	for _, id := range ls.order {
		out = append(out, ls.items[id])
	}
	return out
}

// Len returns the number of registered listeners
func (ls *Listeners[T]) Len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.items)
}
