// Package chat coordinates the conversation: user turns, analysis calls, chart state,
// avatar mood/overlay updates, speech output and persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/normanking/veriflow/internal/analysis"
	"github.com/normanking/veriflow/internal/avatar"
	"github.com/normanking/veriflow/internal/bus"
	"github.com/normanking/veriflow/internal/dataset"
	"github.com/normanking/veriflow/internal/history"
	"github.com/normanking/veriflow/internal/logging"
	"github.com/normanking/veriflow/internal/speech"
)

var (
	// ErrEmptyInput is returned when a submission is blank after trimming.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy is returned when an analysis is already in flight.
	ErrBusy = errors.New("analysis in progress")
	// ErrClosed is returned once the orchestrator has been closed.
	ErrClosed = errors.New("chat closed")
)

// DefaultUploadName labels an upload that arrived without a file name.
const DefaultUploadName = "uploaded.json"

// Deps are the collaborators an Orchestrator drives. Store and Analyzer are required.
// The orchestrator takes ownership of Speech and closes it on Close.
type Deps struct {
	Store    history.Store
	Analyzer analysis.Analyzer
	Avatar   *avatar.Controller
	Speech   *speech.Bridge
	Bus      *bus.EventBus
	Logger   *logging.Logger
	Dataset  *dataset.Dataset
}

// Snapshot is everything the front-end needs to draw the current screen.
type Snapshot struct {
	Turns       []history.Turn `json:"turns"`
	Input       string         `json:"input"`
	Loading     bool           `json:"loading"`
	Mood        avatar.Mood    `json:"mood"`
	Overlay     avatar.Overlay `json:"overlay"`
	Listening   bool           `json:"listening"`
	Speaking    bool           `json:"speaking"`
	Chart       analysis.Chart `json:"chart"`
	Dataset     string         `json:"dataset"`
	DatasetSize int            `json:"dataset_size"`
	Speech      Settings       `json:"speech"`
}

// Orchestrator owns the chat session state.
type Orchestrator struct {
	mu     sync.Mutex
	saveMu sync.Mutex
	// emitMu keeps turn and loading events on the bus in the order the state changed.
	emitMu sync.Mutex

	store    history.Store
	analyzer analysis.Analyzer
	avatar   *avatar.Controller
	speech   *speech.Bridge
	bus      *bus.EventBus
	log      *logging.Logger

	turns    []history.Turn
	input    string
	loading  bool
	chart    analysis.Chart
	data     *dataset.Dataset
	settings Settings
	last     avatar.State
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an orchestrator, restores history from the store and wires speech and
// avatar callbacks.
func New(ctx context.Context, deps Deps, settings Settings) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("chat: store is required")
	}
	if deps.Analyzer == nil {
		return nil, errors.New("chat: analyzer is required")
	}
	if deps.Avatar == nil {
		deps.Avatar = avatar.NewController()
	}
	if deps.Speech == nil {
		deps.Speech = speech.NewBridge(nil, nil, "", deps.Logger)
	}
	if deps.Bus == nil {
		deps.Bus = bus.NewEventBus()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Dataset == nil {
		deps.Dataset = dataset.Default()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:    deps.Store,
		analyzer: deps.Analyzer,
		avatar:   deps.Avatar,
		speech:   deps.Speech,
		bus:      deps.Bus,
		log:      deps.Logger,
		turns:    history.LoadOrWelcome(ctx, deps.Store, deps.Logger),
		chart:    analysis.Chart{Type: analysis.ChartNone, Data: []analysis.DataPoint{}},
		data:     deps.Dataset,
		settings: settings.normalized(),
		last:     deps.Avatar.GetState(),
		ctx:      runCtx,
		cancel:   cancel,
	}

	o.avatar.SetStateHandler(o.handleAvatarState)
	o.speech.SetHandlers(speech.Handlers{
		OnListeningChange: o.handleListening,
		OnSpeakingChange:  o.handleSpeaking,
		OnTranscript:      o.handleTranscript,
		OnVoicesChange:    o.handleVoices,
	})
	o.handleVoices(o.speech.Voices())

	o.log.Info("chat", "Chat orchestrator ready", map[string]interface{}{
		"analyzer": deps.Analyzer.Name(),
		"turns":    len(o.turns),
		"dataset":  o.data.Name,
	})
	return o, nil
}

// Submit sends text as a user question and waits for the answer.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	prompt, err := o.accept(text, true, false)
	if err != nil {
		return err
	}
	o.analyze(ctx, prompt)
	return nil
}

// SubmitAsync accepts text like Submit but runs the analysis in the background.
// Rejections are reported synchronously.
func (o *Orchestrator) SubmitAsync(text string) error {
	prompt, err := o.accept(text, true, true)
	if err != nil {
		return err
	}
	go func() {
		defer o.wg.Done()
		o.analyze(o.ctx, prompt)
	}()
	return nil
}

// SubmitPrompt sends a suggested prompt verbatim and waits for the answer.
func (o *Orchestrator) SubmitPrompt(ctx context.Context, prompt string) error {
	p, err := o.accept(prompt, false, false)
	if err != nil {
		return err
	}
	o.analyze(ctx, p)
	return nil
}

// SubmitPromptAsync is SubmitPrompt with the analysis in the background.
func (o *Orchestrator) SubmitPromptAsync(prompt string) error {
	p, err := o.accept(prompt, false, true)
	if err != nil {
		return err
	}
	go func() {
		defer o.wg.Done()
		o.analyze(o.ctx, p)
	}()
	return nil
}

// accept validates a submission and records it: loading on, user turn appended,
// input cleared, confirmation overlay shown. With async set it also registers the
// background analysis with the wait group while the closed flag is held.
func (o *Orchestrator) accept(text string, trim, async bool) (string, error) {
	prompt := text
	if trim {
		prompt = strings.TrimSpace(text)
	}

	o.emitMu.Lock()
	o.mu.Lock()
	var err error
	switch {
	case o.closed:
		err = ErrClosed
	case strings.TrimSpace(prompt) == "":
		err = ErrEmptyInput
	case o.loading:
		err = ErrBusy
	}
	if err != nil {
		o.mu.Unlock()
		o.emitMu.Unlock()
		return "", err
	}
	o.loading = true
	if async {
		o.wg.Add(1)
	}
	turn := history.Turn{Role: history.RoleUser, Content: prompt}
	o.turns = append(o.turns, turn)
	inputChanged := o.input != ""
	o.input = ""
	o.mu.Unlock()

	o.publish(bus.EventTypeLoadingChanged, map[string]any{"loading": true})
	o.publish(bus.EventTypeTurnAppended, map[string]any{"turn": turn})
	if inputChanged {
		o.publish(bus.EventTypeInputChanged, map[string]any{"input": ""})
	}
	o.emitMu.Unlock()

	o.avatar.SetLoading(true)
	o.persist()
	o.avatar.TriggerConfirmation()
	return prompt, nil
}

// analyze runs the analyzer and records the outcome. Loading is cleared on every path.
func (o *Orchestrator) analyze(ctx context.Context, prompt string) {
	defer o.finish()

	o.mu.Lock()
	data := o.data
	o.mu.Unlock()

	o.log.Debug("chat", "Analyzing", map[string]interface{}{"prompt": prompt, "records": data.Len()})

	res, err := o.analyzer.Analyze(ctx, prompt, data)
	if err == nil && res == nil {
		err = analysis.ErrAnalysisUnavailable
	}
	if err != nil {
		o.log.Error("chat", "Analysis failed", err, map[string]interface{}{
			"analyzer": o.analyzer.Name(),
			"reason":   string(analysis.Reason(err)),
		})
		o.appendTurn(history.Turn{Role: history.RoleBot, Content: "Error: " + analysis.UserMessage(err)})
		return
	}

	chart := res.Chart
	if chart.Data == nil {
		chart.Data = []analysis.DataPoint{}
	}
	o.appendTurn(history.Turn{Role: history.RoleBot, Content: res.Summary})

	o.mu.Lock()
	o.chart = chart
	settings := o.settings
	o.mu.Unlock()
	o.publish(bus.EventTypeChartUpdated, map[string]any{"chart": chart})

	if chart.Renderable() {
		o.avatar.TriggerAnalysisComplete()
	}
	if settings.Enabled && o.speech.SynthesisSupported() {
		o.speech.Speak(res.Summary, speech.SpeakOptions{Rate: settings.Rate, VoiceID: settings.VoiceID})
	}
}

func (o *Orchestrator) finish() {
	o.emitMu.Lock()
	o.mu.Lock()
	o.loading = false
	o.mu.Unlock()
	o.publish(bus.EventTypeLoadingChanged, map[string]any{"loading": false})
	o.emitMu.Unlock()

	o.avatar.SetLoading(false)
}

// UploadDataset replaces the active dataset with raw, a JSON array. On failure a bot
// error turn is appended and the dataset is left unchanged.
func (o *Orchestrator) UploadDataset(name string, raw []byte) error {
	if name == "" {
		name = DefaultUploadName
	}
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ds, warnings, err := dataset.Parse(name, raw)
	if err != nil {
		o.log.Warn("chat", "Rejected dataset upload", map[string]interface{}{"name": name, "error": err.Error()})
		o.appendTurn(history.Turn{Role: history.RoleBot, Content: "Failed to read the file: " + err.Error()})
		return fmt.Errorf("upload %s: %w", name, err)
	}
	for _, w := range warnings {
		o.log.Warn("chat", "Dataset shape warning", map[string]interface{}{"name": name, "warning": w})
	}

	o.mu.Lock()
	o.data = ds
	o.mu.Unlock()

	o.log.Info("chat", "Dataset replaced", map[string]interface{}{"name": name, "records": ds.Len()})
	o.publish(bus.EventTypeDatasetChanged, map[string]any{"name": name, "records": ds.Len()})
	o.appendTurn(history.Turn{
		Role:    history.RoleBot,
		Content: fmt.Sprintf("%q loaded successfully. You can now ask questions about this data.", name),
	})
	return nil
}

// Dataset returns the active dataset
func (o *Orchestrator) Dataset() *dataset.Dataset {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.data
}

// SetInput replaces the input buffer
func (o *Orchestrator) SetInput(text string) {
	o.mu.Lock()
	changed := o.input != text
	o.input = text
	o.mu.Unlock()
	if changed {
		o.publish(bus.EventTypeInputChanged, map[string]any{"input": text})
	}
}

// Input returns the input buffer
func (o *Orchestrator) Input() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.input
}

// FocusInput shows the user_typing overlay
func (o *Orchestrator) FocusInput() { o.avatar.FocusInput() }

// BlurInput returns the overlay to default
func (o *Orchestrator) BlurInput() { o.avatar.BlurInput() }

// Turns returns a copy of the conversation
func (o *Orchestrator) Turns() []history.Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]history.Turn(nil), o.turns...)
}

// Chart returns the current chart
func (o *Orchestrator) Chart() analysis.Chart {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := o.chart
	c.Data = append([]analysis.DataPoint{}, o.chart.Data...)
	return c
}

// Loading reports whether an analysis is in flight
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// Snapshot returns the front-end view of the session.
func (o *Orchestrator) Snapshot() Snapshot {
	st := o.avatar.GetState()
	recSupported := o.speech.RecognitionSupported()
	synSupported := o.speech.SynthesisSupported()

	o.mu.Lock()
	defer o.mu.Unlock()
	settings := o.settings
	settings.RecognitionSupported = recSupported
	settings.SynthesisSupported = synSupported

	chart := o.chart
	chart.Data = append([]analysis.DataPoint{}, o.chart.Data...)
	return Snapshot{
		Turns:       append([]history.Turn{}, o.turns...),
		Input:       o.input,
		Loading:     o.loading,
		Mood:        st.Mood,
		Overlay:     st.Overlay,
		Listening:   st.Listening,
		Speaking:    st.Speaking,
		Chart:       chart,
		Dataset:     o.data.Name,
		DatasetSize: o.data.Len(),
		Speech:      settings,
	}
}

// Wait blocks until background analyses have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close rejects further submissions, detaches and stops speech, then cancels
// background analyses and waits for them. It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.speech.Close()
	o.cancel()
	o.wg.Wait()
	o.avatar.Close()
}

func (o *Orchestrator) appendTurn(turn history.Turn) {
	o.emitMu.Lock()
	o.mu.Lock()
	o.turns = append(o.turns, turn)
	o.mu.Unlock()
	o.publish(bus.EventTypeTurnAppended, map[string]any{"turn": turn})
	o.emitMu.Unlock()

	o.persist()
}

// persist writes the latest turns. Saves are serialized so the last write always
// holds the newest conversation.
func (o *Orchestrator) persist() {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()

	o.mu.Lock()
	turns := append([]history.Turn(nil), o.turns...)
	o.mu.Unlock()

	if err := o.store.Save(o.ctx, turns); err != nil {
		o.log.Error("chat", "Failed to save chat history", err, map[string]interface{}{"turns": len(turns)})
	}
}

// publish delivers on the caller's goroutine so subscribers see events in order.
func (o *Orchestrator) publish(et bus.EventType, data map[string]any) {
	o.bus.PublishSync(bus.Event{Type: et, Data: data})
}

func (o *Orchestrator) handleAvatarState(st avatar.State) {
	o.mu.Lock()
	prev := o.last
	o.last = st
	o.mu.Unlock()

	if st.Mood != prev.Mood {
		o.publish(bus.EventTypeMoodChanged, map[string]any{"mood": st.Mood, "state": st})
	}
	if st.Overlay != prev.Overlay {
		o.publish(bus.EventTypeOverlayChanged, map[string]any{"overlay": st.Overlay, "state": st})
	}
}

func (o *Orchestrator) handleListening(listening bool) {
	o.avatar.SetListening(listening)
	if listening {
		o.publish(bus.EventTypeListeningStarted, nil)
	} else {
		o.publish(bus.EventTypeListeningStopped, nil)
	}
}

func (o *Orchestrator) handleSpeaking(speaking bool) {
	o.avatar.SetSpeaking(speaking)
	if speaking {
		o.publish(bus.EventTypeSpeakingStarted, nil)
	} else {
		o.publish(bus.EventTypeSpeakingStopped, nil)
	}
}

// handleTranscript puts a finished transcript in the input box and submits it.
func (o *Orchestrator) handleTranscript(transcript string) {
	o.publish(bus.EventTypeTranscript, map[string]any{"transcript": transcript})
	o.SetInput(transcript)

	if err := o.SubmitAsync(transcript); err != nil {
		o.log.Debug("chat", "Transcript not submitted", map[string]interface{}{"error": err.Error()})
	}
}
