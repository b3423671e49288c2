// Package avatar manages the avatar's behavioral state: the mood derived from the
// conversation flags and the transient interaction overlay.
package avatar

import (
	"fmt"
	"sync"
	"time"
)

// Mood is the avatar's base behavioral state
type Mood string

const (
	MoodIdle      Mood = "idle"
	MoodListening Mood = "listening"
	MoodThinking  Mood = "thinking"
	MoodSpeaking  Mood = "speaking"
)

// Moods lists every mood in priority order, highest first.
var Moods = []Mood{MoodListening, MoodThinking, MoodSpeaking, MoodIdle}

// ParseMood converts a string into a Mood
func ParseMood(s string) (Mood, error) {
	for _, m := range Moods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mood %q", s)
}

// Overlay is a transient animation override triggered by a user action
type Overlay string

const (
	OverlayDefault          Overlay = "default"
	OverlayUserTyping       Overlay = "user_typing"
	OverlayConfirmation     Overlay = "confirmation"
	OverlayAnalysisComplete Overlay = "analysis_complete"
)

// Overlays lists every overlay value.
var Overlays = []Overlay{OverlayDefault, OverlayUserTyping, OverlayConfirmation, OverlayAnalysisComplete}

// ParseOverlay converts a string into an Overlay
func ParseOverlay(s string) (Overlay, error) {
	for _, o := range Overlays {
		if string(o) == s {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown overlay %q", s)
}

// DeriveMood maps the three conversation flags onto a mood.
// Priority: listening > loading (thinking) > speaking > idle.
func DeriveMood(listening, loading, speaking bool) Mood {
	switch {
	case listening:
		return MoodListening
	case loading:
		return MoodThinking
	case speaking:
		return MoodSpeaking
	default:
		return MoodIdle
	}
}

// Default overlay lifetimes
const (
	ConfirmationDuration     = 1000 * time.Millisecond
	AnalysisCompleteDuration = 4000 * time.Millisecond
)

// State is a snapshot of the controller
type State struct {
	Mood      Mood    `json:"mood"`
	Overlay   Overlay `json:"overlay"`
	Listening bool    `json:"listening"`
	Loading   bool    `json:"loading"`
	Speaking  bool    `json:"speaking"`
}

// Controller owns the mood flags and the overlay with its revert timers.
type Controller struct {
	mu sync.Mutex

	listening bool
	loading   bool
	speaking  bool
	overlay   Overlay

	// overlayGen increments on every overlay write; a revert only fires if the
	// generation it captured is still current.
	overlayGen uint64
	pending    Timer

	scheduler       Scheduler
	confirmationDur time.Duration
	analysisDoneDur time.Duration
	onStateChange   func(State)
}

// Option configures a Controller
type Option func(*Controller)

// WithScheduler replaces the wall-clock timer source.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithOverlayDurations overrides the confirmation and analysis-complete lifetimes.
func WithOverlayDurations(confirmation, analysisComplete time.Duration) Option {
	return func(c *Controller) {
		if confirmation > 0 {
			c.confirmationDur = confirmation
		}
		if analysisComplete > 0 {
			c.analysisDoneDur = analysisComplete
		}
	}
}

// NewController creates a new avatar controller in idle/default
func NewController(opts ...Option) *Controller {
	c := &Controller{
		overlay:         OverlayDefault,
		scheduler:       WallClock{},
		confirmationDur: ConfirmationDuration,
		analysisDoneDur: AnalysisCompleteDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetStateHandler sets the callback for state changes
func (c *Controller) SetStateHandler(handler func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = handler
}

// GetState returns the current state
func (c *Controller) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Mood returns the current mood
func (c *Controller) Mood() Mood {
	return c.GetState().Mood
}

// Overlay returns the current overlay
func (c *Controller) Overlay() Overlay {
	return c.GetState().Overlay
}

func (c *Controller) stateLocked() State {
	return State{
		Mood:      DeriveMood(c.listening, c.loading, c.speaking),
		Overlay:   c.overlay,
		Listening: c.listening,
		Loading:   c.loading,
		Speaking:  c.speaking,
	}
}

// SetListening updates the listening flag
func (c *Controller) SetListening(v bool) {
	c.update(func() bool {
		changed := c.listening != v
		c.listening = v
		return changed
	})
}

// SetLoading updates the loading (analysis in flight) flag
func (c *Controller) SetLoading(v bool) {
	c.update(func() bool {
		changed := c.loading != v
		c.loading = v
		return changed
	})
}

// SetSpeaking updates the speaking flag
func (c *Controller) SetSpeaking(v bool) {
	c.update(func() bool {
		changed := c.speaking != v
		c.speaking = v
		return changed
	})
}

// SetOverlay sets a level-triggered overlay with no revert timer.
// Any pending revert becomes stale.
func (c *Controller) SetOverlay(o Overlay) {
	c.update(func() bool {
		return c.writeOverlayLocked(o)
	})
}

// FocusInput switches to the user_typing overlay
func (c *Controller) FocusInput() {
	c.SetOverlay(OverlayUserTyping)
}

// BlurInput returns the overlay to default
func (c *Controller) BlurInput() {
	c.SetOverlay(OverlayDefault)
}

// TriggerConfirmation shows the confirmation nod, reverting after the confirmation lifetime.
func (c *Controller) TriggerConfirmation() {
	c.Flash(OverlayConfirmation, c.confirmationDur)
}

// TriggerAnalysisComplete shows the presentation gesture, reverting after its lifetime.
func (c *Controller) TriggerAnalysisComplete() {
	c.Flash(OverlayAnalysisComplete, c.analysisDoneDur)
}

// Flash sets o and schedules a revert to default after d. The revert is skipped if the
// overlay was written again in the meantime, even with the same value.
func (c *Controller) Flash(o Overlay, d time.Duration) {
	c.update(func() bool {
		changed := c.writeOverlayLocked(o)
		gen := c.overlayGen
		c.pending = c.scheduler.AfterFunc(d, func() { c.revert(o, gen) })
		return changed
	})
}

// writeOverlayLocked stores o, bumps the generation and drops the pending timer.
func (c *Controller) writeOverlayLocked(o Overlay) bool {
	changed := c.overlay != o
	c.overlay = o
	c.overlayGen++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	return changed
}

func (c *Controller) revert(owner Overlay, gen uint64) {
	c.update(func() bool {
		if c.overlay != owner || c.overlayGen != gen {
			return false
		}
		c.overlay = OverlayDefault
		c.overlayGen++
		c.pending = nil
		return owner != OverlayDefault
	})
}

// update applies fn under the lock and notifies outside it when fn reports a change.
func (c *Controller) update(fn func() bool) {
	c.mu.Lock()
	before := c.stateLocked()
	changed := fn()
	after := c.stateLocked()
	handler := c.onStateChange
	c.mu.Unlock()

	if changed && before != after && handler != nil {
		handler(after)
	}
}

// Close stops any pending revert timer
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.overlayGen++
}
