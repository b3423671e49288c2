package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/normanking/veriflow/internal/analysis"
	"github.com/normanking/veriflow/internal/avatar"
	"github.com/normanking/veriflow/internal/bus"
	"github.com/normanking/veriflow/internal/dataset"
	"github.com/normanking/veriflow/internal/history"
	"github.com/normanking/veriflow/internal/speech"
	"github.com/normanking/veriflow/internal/speech/speechtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	orch  *Orchestrator
	store *history.MemoryStore
	mock  *analysis.Mock
	sched *avatar.ManualScheduler
	ctrl  *avatar.Controller
	rec   *speechtest.Recognizer
	syn   *speechtest.Synthesizer
	bus   *bus.EventBus
}

func newHarness(t *testing.T, mock *analysis.Mock, settings Settings) *harness {
	t.Helper()
	h := &harness{
		store: history.NewMemoryStore(),
		mock:  mock,
		sched: avatar.NewManualScheduler(),
		rec:   &speechtest.Recognizer{},
		syn:   &speechtest.Synthesizer{},
		bus:   bus.NewEventBus(),
	}
	h.ctrl = avatar.NewController(avatar.WithScheduler(h.sched))
	bridge := speech.NewBridge(h.rec, h.syn, "tr-TR", nil)
	t.Cleanup(bridge.Close)

	orch, err := New(context.Background(), Deps{
		Store:    h.store,
		Analyzer: mock,
		Avatar:   h.ctrl,
		Speech:   bridge,
		Bus:      h.bus,
	}, settings)
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	h.orch = orch
	return h
}

func topThree() *analysis.Result {
	return &analysis.Result{
		Summary: "The three most expensive products are Laptop Pro, Smartphone X and Wireless Headphones.",
		Chart: analysis.Chart{Type: analysis.ChartBar, Data: []analysis.DataPoint{
			{Name: "Laptop Pro", Value: 1200},
			{Name: "Smartphone X", Value: 800},
			{Name: "Wireless Headphones", Value: 150},
		}},
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(context.Background(), Deps{Analyzer: analysis.NewMock(topThree())}, DefaultSettings())
	assert.Error(t, err)
	_, err = New(context.Background(), Deps{Store: history.NewMemoryStore()}, DefaultSettings())
	assert.Error(t, err)
}

func TestNew_StartsWithWelcome(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), DefaultSettings())
	snap := h.orch.Snapshot()
	assert.Equal(t, history.Welcome(), snap.Turns)
	assert.Equal(t, analysis.ChartNone, snap.Chart.Type)
	assert.Empty(t, snap.Chart.Data)
	assert.Equal(t, dataset.DefaultName, snap.Dataset)
	assert.Equal(t, len(dataset.SampleProducts), snap.DatasetSize)
	assert.Equal(t, avatar.MoodIdle, snap.Mood)
	assert.True(t, snap.Speech.SynthesisSupported)
}

func TestNew_RestoresHistory(t *testing.T) {
	store := history.NewMemoryStore()
	saved := []history.Turn{
		{Role: history.RoleBot, Content: "hi"},
		{Role: history.RoleUser, Content: "q"},
	}
	require.NoError(t, store.Save(context.Background(), saved))

	orch, err := New(context.Background(), Deps{Store: store, Analyzer: analysis.NewMock(topThree())}, DefaultSettings())
	require.NoError(t, err)
	defer orch.Close()
	assert.Equal(t, saved, orch.Turns())
}

func TestSubmit_MostExpensiveProducts(t *testing.T) {
	mock := &analysis.Mock{}
	h := newHarness(t, mock, Settings{Enabled: true, Rate: 1.5, Mode: PushToTalk})
	h.orch.SetInput("Show the 3 most expensive products")

	var during avatar.State
	var loadingDuring bool
	mock.Func = func(_ context.Context, prompt string, data *dataset.Dataset) (*analysis.Result, error) {
		during = h.ctrl.GetState()
		loadingDuring = h.orch.Loading()
		assert.Equal(t, len(dataset.SampleProducts), data.Len())
		// The model takes half a second.
		h.sched.Advance(500 * time.Millisecond)
		return topThree(), nil
	}

	require.NoError(t, h.orch.Submit(context.Background(), "  Show the 3 most expensive products "))

	assert.True(t, loadingDuring)
	assert.Equal(t, avatar.MoodThinking, during.Mood)
	assert.Equal(t, avatar.OverlayConfirmation, during.Overlay)
	assert.Equal(t, []string{"Show the 3 most expensive products"}, mock.Calls())

	turns := h.orch.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, history.Turn{Role: history.RoleUser, Content: "Show the 3 most expensive products"}, turns[1])
	assert.Equal(t, history.Turn{Role: history.RoleBot, Content: topThree().Summary}, turns[2])

	snap := h.orch.Snapshot()
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Input)
	assert.Equal(t, topThree().Chart, snap.Chart)
	assert.Equal(t, avatar.MoodIdle, snap.Mood)
	assert.Equal(t, avatar.OverlayAnalysisComplete, snap.Overlay)

	// The confirmation revert due at 1s must not cut the presentation short.
	h.sched.Advance(500 * time.Millisecond)
	assert.Equal(t, avatar.OverlayAnalysisComplete, h.ctrl.Overlay())
	h.sched.Advance(3499 * time.Millisecond)
	assert.Equal(t, avatar.OverlayAnalysisComplete, h.ctrl.Overlay())
	h.sched.Advance(time.Millisecond)
	assert.Equal(t, avatar.OverlayDefault, h.ctrl.Overlay())

	u, ok := h.syn.Last()
	require.True(t, ok)
	assert.Equal(t, topThree().Summary, u.Text)
	assert.Equal(t, 1.5, u.Rate)

	h.syn.EmitStart(u.ID)
	assert.Equal(t, avatar.MoodSpeaking, h.ctrl.Mood())
	h.syn.EmitEnd(u.ID)
	assert.Equal(t, avatar.MoodIdle, h.ctrl.Mood())

	saved, err := history.Decode(h.store.Raw())
	require.NoError(t, err)
	assert.Equal(t, turns, saved)
}

func TestSubmit_RejectsEmpty(t *testing.T) {
	mock := analysis.NewMock(topThree())
	h := newHarness(t, mock, DefaultSettings())
	h.orch.SetInput("   ")

	for _, text := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, h.orch.Submit(context.Background(), text), ErrEmptyInput)
	}
	assert.ErrorIs(t, h.orch.SubmitPrompt(context.Background(), ""), ErrEmptyInput)

	assert.Empty(t, mock.Calls())
	assert.Equal(t, history.Welcome(), h.orch.Turns())
	assert.Equal(t, "   ", h.orch.Input())
	assert.Zero(t, h.store.Saves())
	assert.Equal(t, avatar.OverlayDefault, h.ctrl.Overlay())
}

func TestSubmit_RejectsWhileBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mock := &analysis.Mock{Func: func(context.Context, string, *dataset.Dataset) (*analysis.Result, error) {
		close(started)
		<-release
		return topThree(), nil
	}}
	h := newHarness(t, mock, Settings{Enabled: false})

	require.NoError(t, h.orch.SubmitAsync("first"))
	<-started

	assert.True(t, h.orch.Loading())
	assert.ErrorIs(t, h.orch.Submit(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, h.orch.SubmitPromptAsync("third"), ErrBusy)
	assert.Len(t, h.orch.Turns(), 2)

	close(release)
	h.orch.Wait()

	assert.False(t, h.orch.Loading())
	assert.Equal(t, []string{"first"}, mock.Calls())
	assert.Len(t, h.orch.Turns(), 3)
	assert.Empty(t, h.syn.Utterances())
}

func TestSubmit_AnalysisErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unavailable", fmt.Errorf("%w: timeout", analysis.ErrAnalysisUnavailable), "Error: " + analysis.UnavailableMessage},
		{"other", errors.New("quota exceeded"), "Error: quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &analysis.Mock{Func: func(context.Context, string, *dataset.Dataset) (*analysis.Result, error) {
				return nil, tt.err
			}}
			h := newHarness(t, mock, DefaultSettings())

			require.NoError(t, h.orch.Submit(context.Background(), "anything"))

			turns := h.orch.Turns()
			require.Len(t, turns, 3)
			assert.Equal(t, history.Turn{Role: history.RoleBot, Content: tt.want}, turns[2])
			assert.False(t, h.orch.Loading())
			assert.Equal(t, avatar.MoodIdle, h.ctrl.Mood())
			assert.Equal(t, analysis.ChartNone, h.orch.Chart().Type)
			assert.Empty(t, h.syn.Utterances())
		})
	}
}

func TestSubmit_NoChartSkipsPresentation(t *testing.T) {
	mock := analysis.NewMock(&analysis.Result{
		Summary: "There are 10 products.",
		Chart:   analysis.Chart{Type: analysis.ChartNone, Data: []analysis.DataPoint{}},
	})
	h := newHarness(t, mock, DefaultSettings())

	require.NoError(t, h.orch.Submit(context.Background(), "how many products?"))
	assert.Equal(t, avatar.OverlayConfirmation, h.ctrl.Overlay())
	h.sched.Advance(time.Second)
	assert.Equal(t, avatar.OverlayDefault, h.ctrl.Overlay())
}

func TestSubmitPrompt_ClearsInput(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), Settings{})
	h.orch.SetInput("half typed")

	require.NoError(t, h.orch.SubmitPrompt(context.Background(), "Which category has the most stock?"))
	assert.Empty(t, h.orch.Input())
	assert.Equal(t, "Which category has the most stock?", h.orch.Turns()[1].Content)
}

func TestUploadDataset(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), DefaultSettings())

	err := h.orch.UploadDataset("bad.json", []byte(`{"name":"x"}`))
	require.ErrorIs(t, err, dataset.ErrNotArray)
	assert.Equal(t, dataset.DefaultName, h.orch.Dataset().Name)
	turns := h.orch.Turns()
	assert.Equal(t, history.Turn{Role: history.RoleBot, Content: "Failed to read the file: " + dataset.ErrNotArray.Error()}, turns[len(turns)-1])

	err = h.orch.UploadDataset("broken.json", []byte(`[{`))
	require.ErrorIs(t, err, dataset.ErrInvalidJSON)
	assert.Equal(t, dataset.DefaultName, h.orch.Dataset().Name)

	raw := []byte(`[{"name":"B","price":2},{"name":"A","price":1}]`)
	require.NoError(t, h.orch.UploadDataset("products.json", raw))
	ds := h.orch.Dataset()
	assert.Equal(t, "products.json", ds.Name)
	require.Equal(t, 2, ds.Len())
	assert.JSONEq(t, `{"name":"B","price":2}`, string(ds.Records[0]))
	turns = h.orch.Turns()
	assert.Equal(t, `"products.json" loaded successfully. You can now ask questions about this data.`, turns[len(turns)-1].Content)

	require.NoError(t, h.orch.UploadDataset("", []byte(`[1, 2, 3]`)))
	assert.Equal(t, DefaultUploadName, h.orch.Dataset().Name)

	require.NoError(t, h.orch.Submit(context.Background(), "what is this?"))
	assert.Equal(t, 3, h.orch.Snapshot().DatasetSize)
}

func TestTranscriptAutoSubmits(t *testing.T) {
	mock := analysis.NewMock(topThree())
	h := newHarness(t, mock, DefaultSettings())

	h.orch.MicPress()
	assert.True(t, h.orch.Snapshot().Listening)
	assert.Equal(t, avatar.MoodListening, h.ctrl.Mood())

	h.rec.EmitResult("en pahalı 3 ürün")
	h.orch.Wait()

	assert.Equal(t, []string{"en pahalı 3 ürün"}, mock.Calls())
	assert.Empty(t, h.orch.Input())
	assert.False(t, h.orch.Snapshot().Listening)
	assert.Equal(t, "en pahalı 3 ürün", h.orch.Turns()[1].Content)
}

func TestRecognitionErrorAddsNoTurn(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), DefaultSettings())
	h.orch.StartListening()
	h.rec.EmitError("no-speech")

	assert.Equal(t, avatar.MoodIdle, h.ctrl.Mood())
	assert.Equal(t, history.Welcome(), h.orch.Turns())
}

func TestListeningModes(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), DefaultSettings())

	h.orch.MicPress()
	assert.True(t, h.ctrl.GetState().Listening)
	h.orch.MicRelease()
	assert.False(t, h.ctrl.GetState().Listening)

	require.NoError(t, h.orch.SetListeningMode(Continuous))
	h.orch.MicPress()
	h.orch.MicRelease()
	assert.True(t, h.ctrl.GetState().Listening)
	h.orch.MicPress()
	assert.False(t, h.ctrl.GetState().Listening)

	assert.Error(t, h.orch.SetListeningMode("walkie-talkie"))
}

func TestSpeechSettings(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), DefaultSettings())

	assert.Equal(t, 2.0, h.orch.SetSpeechRate(3))
	assert.Equal(t, 0.5, h.orch.SetSpeechRate(0.1))

	h.syn.SetVoices([]speech.Voice{
		{ID: "en", Name: "Samantha", Language: "en-US"},
		{ID: "tr", Name: "Yelda", Language: "tr-TR"},
	})
	assert.Equal(t, "tr", h.orch.Settings().VoiceID)

	require.NoError(t, h.orch.SetVoice("en"))
	assert.Error(t, h.orch.SetVoice("missing"))
	assert.Equal(t, "en", h.orch.Settings().VoiceID)

	h.orch.SetSpeechEnabled(false)
	require.NoError(t, h.orch.Submit(context.Background(), "quiet please"))
	assert.Empty(t, h.syn.Utterances())
}

func TestFocusAndBlur(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), DefaultSettings())
	h.orch.FocusInput()
	assert.Equal(t, avatar.OverlayUserTyping, h.ctrl.Overlay())
	h.orch.BlurInput()
	assert.Equal(t, avatar.OverlayDefault, h.ctrl.Overlay())
}

func TestPublishesEvents(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), DefaultSettings())

	charts := make(chan bus.Event, 1)
	h.bus.Subscribe(bus.EventTypeChartUpdated, func(e bus.Event) { charts <- e })

	require.NoError(t, h.orch.Submit(context.Background(), "top 3"))

	select {
	case e := <-charts:
		chart, ok := e.Data["chart"].(analysis.Chart)
		require.True(t, ok)
		assert.Equal(t, analysis.ChartBar, chart.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("chart event not published")
	}
}

func TestTurnEventsFollowConversationOrder(t *testing.T) {
	h := newHarness(t, analysis.NewMock(topThree()), DefaultSettings())

	var (
		mu      sync.Mutex
		seen    []history.Turn
		loading []bool
	)
	h.bus.Subscribe(bus.EventTypeTurnAppended, func(e bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Data["turn"].(history.Turn))
	})
	h.bus.Subscribe(bus.EventTypeLoadingChanged, func(e bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		loading = append(loading, e.Data["loading"].(bool))
	})

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			assert.NoError(t, h.orch.Submit(context.Background(), fmt.Sprintf("question %d", i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			assert.NoError(t, h.orch.UploadDataset(fmt.Sprintf("set-%d.json", i), []byte(`[{"name":"A","price":1}]`)))
		}
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, h.orch.Turns()[1:], seen)

	require.Len(t, loading, 2*rounds)
	for i, v := range loading {
		assert.Equal(t, i%2 == 0, v, "loading event %d", i)
	}

	var questions []history.Turn
	for i, turn := range seen {
		if turn.Role == history.RoleUser {
			questions = append(questions, turn)
			require.Less(t, i+1, len(seen))
			assert.Equal(t, history.RoleBot, seen[i+1].Role)
		}
	}
	assert.Len(t, questions, rounds)
}

func TestClose_DetachesSpeechAndRejectsWork(t *testing.T) {
	mock := analysis.NewMock(topThree())
	h := newHarness(t, mock, DefaultSettings())

	h.orch.StartListening()
	require.Equal(t, 1, h.rec.Listeners())

	h.orch.Close()
	assert.Zero(t, h.rec.Listeners())
	assert.Zero(t, h.syn.Listeners())

	h.rec.EmitResult("most expensive 3 products")
	h.orch.Wait()

	assert.Empty(t, mock.Calls())
	assert.Equal(t, history.Welcome(), h.orch.Turns())
	assert.False(t, h.orch.Loading())

	assert.ErrorIs(t, h.orch.Submit(context.Background(), "late"), ErrClosed)
	assert.ErrorIs(t, h.orch.SubmitAsync("late"), ErrClosed)
	assert.ErrorIs(t, h.orch.SubmitPromptAsync("late"), ErrClosed)
	assert.ErrorIs(t, h.orch.UploadDataset("late.json", []byte(`[1]`)), ErrClosed)
	assert.Equal(t, history.Welcome(), h.orch.Turns())
}

func TestParseListeningMode(t *testing.T) {
	m, err := ParseListeningMode("continuous")
	require.NoError(t, err)
	assert.Equal(t, Continuous, m)
	_, err = ParseListeningMode("")
	assert.Error(t, err)
}
