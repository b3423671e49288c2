package speech

import (
	"strconv"
	"strings"
	"sync"

	"github.com/normanking/veriflow/internal/logging"
)

// SpeakOptions tunes one utterance
type SpeakOptions struct {
	Rate    float64
	VoiceID string
	// OnDone fires exactly once: when the utterance ends, when it is cancelled, or
	// synchronously from Speak when synthesis is unsupported.
	OnDone func()
}

// Handlers receive bridge state changes. Nil fields are skipped.
type Handlers struct {
	OnListeningChange func(listening bool)
	OnSpeakingChange  func(speaking bool)
	OnTranscript      func(transcript string)
	OnVoicesChange    func(voices []Voice)
}

type pendingUtterance struct {
	id     string
	onDone func()
}

// Bridge tracks listening/speaking state over a Recognizer and a Synthesizer.
type Bridge struct {
	mu sync.Mutex
	// speakMu pairs each swap of current with the Cancel and Speak calls it
	// implies, so the synthesizer sees them in swap order.
	speakMu sync.Mutex

	rec  Recognizer
	syn  Synthesizer
	lang string
	log  *logging.Logger

	handlers  Handlers
	listening bool
	speaking  bool
	current   *pendingUtterance
	seq       uint64
	unsubs    []func()
	closed    bool
}

// NewBridge wires the bridge to both capabilities. Nil capabilities become null ones.
func NewBridge(rec Recognizer, syn Synthesizer, lang string, log *logging.Logger) *Bridge {
	if rec == nil {
		rec = NullRecognizer{}
	}
	if syn == nil {
		syn = NullSynthesizer{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	b := &Bridge{rec: rec, syn: syn, lang: lang, log: log}

	b.unsubs = append(b.unsubs,
		rec.Subscribe(RecognitionListener{
			OnResult: b.handleResult,
			OnError:  b.handleError,
			OnEnd:    b.handleEnd,
		}),
		syn.Subscribe(SynthesisListener{
			OnStart:         b.handleSpeechStart,
			OnEnd:           b.handleSpeechEnd,
			OnVoicesChanged: b.handleVoices,
		}),
	)
	return b
}

// SetHandlers replaces the state change handlers
func (b *Bridge) SetHandlers(h Handlers) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = h
}

// RecognitionSupported reports whether speech input is available
func (b *Bridge) RecognitionSupported() bool { return b.rec.Supported() }

// SynthesisSupported reports whether speech output is available
func (b *Bridge) SynthesisSupported() bool { return b.syn.Supported() }

// Voices returns the synthesizer's voices
func (b *Bridge) Voices() []Voice { return b.syn.Voices() }

// IsListening reports whether recognition is active
func (b *Bridge) IsListening() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listening
}

// IsSpeaking reports whether an utterance is being spoken
func (b *Bridge) IsSpeaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speaking
}

// StartListening begins recognition. It is a no-op when unsupported or already listening.
func (b *Bridge) StartListening() {
	b.mu.Lock()
	if b.closed || b.listening || !b.rec.Supported() {
		b.mu.Unlock()
		return
	}
	lang := b.lang
	b.mu.Unlock()

	if err := b.rec.Start(lang); err != nil {
		b.log.Error("speech", "Speech recognition could not be started", err, nil)
		b.setListening(false)
		return
	}
	b.setListening(true)
}

// StopListening stops recognition. It is a no-op when unsupported or not listening.
func (b *Bridge) StopListening() {
	b.mu.Lock()
	if !b.listening || !b.rec.Supported() {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if err := b.rec.Stop(); err != nil {
		b.log.Warn("speech", "Speech recognition stop failed", map[string]interface{}{"error": err.Error()})
	}
	b.setListening(false)
}

// ToggleListening starts or stops recognition
func (b *Bridge) ToggleListening() {
	if b.IsListening() {
		b.StopListening()
	} else {
		b.StartListening()
	}
}

// Speak cancels any in-flight utterance and speaks text.
func (b *Bridge) Speak(text string, opts SpeakOptions) {
	if !b.syn.Supported() {
		b.log.Warn("speech", "Speech synthesis not supported", nil)
		if opts.OnDone != nil {
			opts.OnDone()
		}
		return
	}

	rate := opts.Rate
	if rate == 0 {
		rate = DefaultRate
	}

	b.speakMu.Lock()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.speakMu.Unlock()
		if opts.OnDone != nil {
			opts.OnDone()
		}
		return
	}
	prev := b.current
	wasSpeaking := b.speaking
	b.speaking = false
	b.seq++
	u := Utterance{
		ID:      "utt-" + strconv.FormatUint(b.seq, 10),
		Text:    text,
		Rate:    ClampRate(rate),
		VoiceID: opts.VoiceID,
		Lang:    b.lang,
	}
	b.current = &pendingUtterance{id: u.ID, onDone: opts.OnDone}
	onSpeaking := b.handlers.OnSpeakingChange
	b.mu.Unlock()

	if prev != nil {
		b.syn.Cancel()
	}
	if wasSpeaking && onSpeaking != nil {
		onSpeaking(false)
	}
	err := b.syn.Speak(u)
	b.speakMu.Unlock()

	if prev != nil && prev.onDone != nil {
		prev.onDone()
	}
	if err != nil {
		b.log.Error("speech", "Speech synthesis failed", err, map[string]interface{}{"utterance": u.ID})
		b.finish(u.ID)
	}
}

// Cancel stops the in-flight utterance, if any.
func (b *Bridge) Cancel() {
	b.speakMu.Lock()
	b.mu.Lock()
	cur := b.current
	b.mu.Unlock()
	if cur == nil {
		b.speakMu.Unlock()
		return
	}
	b.syn.Cancel()
	b.speakMu.Unlock()
	b.finish(cur.id)
}

// Close detaches every capability listener and cancels pending speech.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	b.Cancel()
}

func (b *Bridge) setListening(v bool) {
	b.mu.Lock()
	changed := b.listening != v
	b.listening = v
	handler := b.handlers.OnListeningChange
	b.mu.Unlock()

	if changed && handler != nil {
		handler(v)
	}
}

// finish clears the utterance with id if it is still current and fires its OnDone.
func (b *Bridge) finish(id string) {
	b.mu.Lock()
	cur := b.current
	if cur == nil || cur.id != id {
		b.mu.Unlock()
		return
	}
	b.current = nil
	wasSpeaking := b.speaking
	b.speaking = false
	handler := b.handlers.OnSpeakingChange
	b.mu.Unlock()

	if wasSpeaking && handler != nil {
		handler(false)
	}
	if cur.onDone != nil {
		cur.onDone()
	}
}

func (b *Bridge) handleResult(transcript string) {
	transcript = strings.TrimSpace(transcript)

	b.mu.Lock()
	handler := b.handlers.OnTranscript
	b.mu.Unlock()

	b.setListening(false)
	if transcript != "" && handler != nil {
		handler(transcript)
	}
}

func (b *Bridge) handleError(code string) {
	b.log.Warn("speech", "Speech recognition error", map[string]interface{}{"code": code})
	b.setListening(false)
}

func (b *Bridge) handleEnd() {
	b.setListening(false)
}

func (b *Bridge) handleSpeechStart(id string) {
	b.mu.Lock()
	if b.current == nil || b.current.id != id || b.speaking {
		b.mu.Unlock()
		return
	}
	b.speaking = true
	handler := b.handlers.OnSpeakingChange
	b.mu.Unlock()

	if handler != nil {
		handler(true)
	}
}

func (b *Bridge) handleSpeechEnd(id string) {
	b.finish(id)
}

func (b *Bridge) handleVoices(voices []Voice) {
	b.mu.Lock()
	handler := b.handlers.OnVoicesChange
	b.mu.Unlock()

	if handler != nil {
		handler(voices)
	}
}
