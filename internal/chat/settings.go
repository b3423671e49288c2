package chat

import (
	"fmt"

	"github.com/normanking/veriflow/internal/speech"
	"github.com/samber/lo"
)

// ListeningMode decides how the microphone button drives recognition.
type ListeningMode string

const (
	// PushToTalk listens while the button is held
	PushToTalk ListeningMode = "push-to-talk"
	// Continuous toggles listening on each press
	Continuous ListeningMode = "continuous"
)

// ParseListeningMode validates a mode name
func ParseListeningMode(s string) (ListeningMode, error) {
	switch m := ListeningMode(s); m {
	case PushToTalk, Continuous:
		return m, nil
	}
	return "", fmt.Errorf("unknown listening mode %q", s)
}

// Settings are the user's speech preferences.
type Settings struct {
	Enabled bool          `json:"enabled"`
	Rate    float64       `json:"rate"`
	VoiceID string        `json:"voice_id"`
	Mode    ListeningMode `json:"mode"`

	RecognitionSupported bool `json:"recognition_supported"`
	SynthesisSupported   bool `json:"synthesis_supported"`
}

// DefaultSettings has speech output on at normal rate in push-to-talk mode.
func DefaultSettings() Settings {
	return Settings{Enabled: true, Rate: speech.DefaultRate, Mode: PushToTalk}
}

func (s Settings) normalized() Settings {
	if s.Rate == 0 {
		s.Rate = speech.DefaultRate
	}
	s.Rate = speech.ClampRate(s.Rate)
	if _, err := ParseListeningMode(string(s.Mode)); err != nil {
		s.Mode = PushToTalk
	}
	return s
}

// Settings returns the current speech preferences
func (o *Orchestrator) Settings() Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// SetSpeechEnabled turns spoken answers on or off. Turning it off stops any
// utterance in progress.
func (o *Orchestrator) SetSpeechEnabled(enabled bool) {
	o.mu.Lock()
	o.settings.Enabled = enabled
	o.mu.Unlock()
	if !enabled {
		o.speech.Cancel()
	}
}

// SetSpeechRate sets the speaking rate, clamped to 0.5-2.0.
func (o *Orchestrator) SetSpeechRate(rate float64) float64 {
	rate = speech.ClampRate(rate)
	o.mu.Lock()
	o.settings.Rate = rate
	o.mu.Unlock()
	return rate
}

// SetVoice selects a synthesis voice by id. Unknown ids are rejected when the
// synthesizer has published its voice list.
func (o *Orchestrator) SetVoice(id string) error {
	voices := o.speech.Voices()
	if len(voices) > 0 && !lo.ContainsBy(voices, func(v speech.Voice) bool { return v.ID == id }) {
		return fmt.Errorf("unknown voice %q", id)
	}
	o.mu.Lock()
	o.settings.VoiceID = id
	o.mu.Unlock()
	return nil
}

// SetListeningMode switches between push-to-talk and continuous.
func (o *Orchestrator) SetListeningMode(mode ListeningMode) error {
	if _, err := ParseListeningMode(string(mode)); err != nil {
		return err
	}
	o.mu.Lock()
	o.settings.Mode = mode
	o.mu.Unlock()
	return nil
}

// StartListening starts voice input
func (o *Orchestrator) StartListening() { o.speech.StartListening() }

// StopListening stops voice input
func (o *Orchestrator) StopListening() { o.speech.StopListening() }

// ToggleListening flips voice input
func (o *Orchestrator) ToggleListening() { o.speech.ToggleListening() }

// MicPress handles the microphone button going down.
func (o *Orchestrator) MicPress() {
	if o.Settings().Mode == Continuous {
		o.speech.ToggleListening()
		return
	}
	o.speech.StartListening()
}

// MicRelease handles the microphone button coming up. Only push-to-talk reacts.
func (o *Orchestrator) MicRelease() {
	if o.Settings().Mode == PushToTalk {
		o.speech.StopListening()
	}
}

// handleVoices keeps the selected voice valid, picking a default when needed.
func (o *Orchestrator) handleVoices(voices []speech.Voice) {
	if len(voices) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	current := o.settings.VoiceID
	if current != "" && lo.ContainsBy(voices, func(v speech.Voice) bool { return v.ID == current }) {
		return
	}
	if v, ok := speech.DefaultVoice(voices); ok {
		o.settings.VoiceID = v.ID
		o.log.Debug("chat", "Selected default voice", map[string]interface{}{"voice": v.ID, "language": v.Language})
	}
}
