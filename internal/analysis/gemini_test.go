package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/normanking/veriflow/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(t *testing.T, payload string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": payload}},
			},
			"finishReason": "STOP",
		}},
	})
	require.NoError(t, err)
	return string(body)
}

func TestGemini_Analyze(t *testing.T) {
	var captured geminiGenerateRequest
	var path, key string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		io.WriteString(w, geminiReply(t, `{"summary":"Laptop Pro is the most expensive.","chart":{"type":"bar","data":[{"name":"Laptop Pro","value":1200},{"name":"Smartphone X","value":800}]}}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "secret", Endpoint: srv.URL + "/"})
	res, err := g.Analyze(context.Background(), "most expensive 3 products", dataset.Default())
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-2.5-flash:generateContent", path)
	assert.Equal(t, "secret", key)
	assert.Equal(t, "Laptop Pro is the most expensive.", res.Summary)
	assert.Equal(t, ChartBar, res.Chart.Type)
	assert.Equal(t, []DataPoint{{"Laptop Pro", 1200}, {"Smartphone X", 800}}, res.Chart.Data)

	require.Len(t, captured.Contents, 1)
	assert.Equal(t, "most expensive 3 products", captured.Contents[0].Parts[0].Text)
	require.NotNil(t, captured.SystemInstruction)
	assert.Contains(t, captured.SystemInstruction.Parts[0].Text, `"name": "Laptop Pro"`)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
	require.NotNil(t, captured.GenerationConfig.ResponseSchema)
	assert.Equal(t, []string{"summary", "chart"}, captured.GenerationConfig.ResponseSchema.Required)
	assert.Equal(t, []string{"bar", "pie", "none"},
		captured.GenerationConfig.ResponseSchema.Properties["chart"].Properties["type"].Enum)
}

func TestGemini_Normalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, geminiReply(t, `{"summary":"No chart needed.","chart":{"type":"scatter"}}`))
	}))
	defer srv.Close()

	res, err := NewGemini(GeminiConfig{APIKey: "k", Endpoint: srv.URL}).Analyze(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, ChartNone, res.Chart.Type)
	assert.NotNil(t, res.Chart.Data)
	assert.False(t, res.Chart.Renderable())
}

func TestGemini_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		reason  ReasonCode
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}, ReasonStatus},
		{"bad envelope", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "not json")
		}, ReasonDecode},
		{"no candidates", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"candidates":[]}`)
		}, ReasonEmpty},
		{"empty text", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, geminiReply(t, "   "))
		}, ReasonEmpty},
		{"bad payload", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, geminiReply(t, "{summary"))
		}, ReasonDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewGemini(GeminiConfig{APIKey: "k", Endpoint: srv.URL}).Analyze(context.Background(), "q", dataset.Default())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAnalysisUnavailable)
			assert.Equal(t, tt.reason, Reason(err))
			assert.Equal(t, UnavailableMessage, UserMessage(err))
		})
	}
}

func TestGemini_MissingKey(t *testing.T) {
	_, err := NewGemini(GeminiConfig{}).Analyze(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrAnalysisUnavailable)
	assert.True(t, HasReason(err, ReasonConfig))
}

func TestGemini_Transport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewGemini(GeminiConfig{APIKey: "k", Endpoint: srv.URL}).Analyze(ctx, "q", nil)
	require.Error(t, err)
	assert.Equal(t, ReasonTransport, Reason(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
	assert.Equal(t, ReasonUnknown, Reason(errors.New("boom")))
}

func TestChartRenderable(t *testing.T) {
	assert.False(t, (*Chart)(nil).Renderable())
	assert.False(t, (&Chart{Type: ChartBar}).Renderable())
	assert.False(t, (&Chart{Type: ChartNone, Data: []DataPoint{{"a", 1}}}).Renderable())
	assert.True(t, (&Chart{Type: ChartPie, Data: []DataPoint{{"a", 1}}}).Renderable())
}

type recordingObserver struct {
	provider string
	err      error
	calls    int
}

func (r *recordingObserver) ObserveAnalysis(provider string, err error, _ time.Duration) {
	r.provider, r.err = provider, err
	r.calls++
}

func TestInstrumented(t *testing.T) {
	obs := &recordingObserver{}
	m := &Mock{Func: func(context.Context, string, *dataset.Dataset) (*Result, error) {
		return nil, unavailable(ReasonStatus, errors.New("down"))
	}}
	a := Instrumented(m, obs)
	_, err := a.Analyze(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, "mock", obs.provider)
	assert.ErrorIs(t, obs.err, ErrAnalysisUnavailable)
	assert.Equal(t, "mock", a.Name())

	assert.Same(t, m, Instrumented(m, nil))
}

func TestMock(t *testing.T) {
	want := &Result{Summary: "s", Chart: Chart{Type: ChartBar, Data: []DataPoint{{"x", 1}}}}
	m := NewMock(want)
	got, err := m.Analyze(context.Background(), "first", nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	got.Chart.Data[0].Value = 99
	assert.Equal(t, float64(1), want.Chart.Data[0].Value)

	_, _ = m.Analyze(context.Background(), "second", nil)
	assert.Equal(t, []string{"first", "second"}, m.Calls())

	empty, err := (&Mock{}).Analyze(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, ChartNone, empty.Chart.Type)
}

func TestOffline(t *testing.T) {
	assert.Equal(t, "offline-demo", Offline{}.Name())

	res, err := Offline{}.Analyze(context.Background(), "Show the 3 most expensive products", dataset.Default())
	require.NoError(t, err)
	assert.Equal(t, ChartBar, res.Chart.Type)
	assert.Equal(t, []DataPoint{{"Laptop Pro", 1200}, {"Smartphone X", 800}, {"Wireless Headphones", 150}}, res.Chart.Data)

	res, err = Offline{}.Analyze(context.Background(), "Which category has the most stock?", dataset.Default())
	require.NoError(t, err)
	assert.Equal(t, ChartPie, res.Chart.Type)
	require.Len(t, res.Chart.Data, 4)
	assert.Equal(t, DataPoint{"Books", 750}, res.Chart.Data[0])
	assert.True(t, strings.HasPrefix(res.Summary, "Clothing"))

	d, _, err := dataset.Parse("x.json", []byte(`[1,2]`))
	require.NoError(t, err)
	res, err = Offline{}.Analyze(context.Background(), "anything", d)
	require.NoError(t, err)
	assert.Equal(t, ChartNone, res.Chart.Type)
}
