package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

func TestHTTPExtractor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req inferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "old town and good food", req.Text)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(inferResponse{
			Keywords:   []string{"old town", "food"},
			Categories: map[string]float64{"historical site": 0.8, "gastronomy": 1.4, "nightlife": -0.2},
		})
	}))
	defer server.Close()

	ex := NewHTTPExtractor(server.URL, server.Client(), fanout.Policy{Timeout: time.Second}, logging.Nop())
	prefs, err := ex.Infer(context.Background(), "old town and good food")

	require.NoError(t, err)
	assert.Equal(t, SourceNLP, prefs.Source)
	assert.Equal(t, []string{"old town", "food"}, prefs.Keywords)
	assert.Equal(t, 0.8, prefs.Categories["historical site"])
	assert.Equal(t, 1.0, prefs.Categories["gastronomy"], "weights are clamped to [0,1]")
	assert.Equal(t, 0.0, prefs.Categories["nightlife"])
}

func TestHTTPExtractor_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer server.Close()

	ex := NewHTTPExtractor(server.URL, server.Client(), fanout.Policy{Timeout: time.Second, Retries: 1}, logging.Nop())
	_, err := ex.Infer(context.Background(), "x")

	var failed *ErrExtractionFailed
	require.True(t, errors.As(err, &failed))
	assert.Contains(t, failed.Reason, "HTTP 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPExtractor_ServerErrorRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(inferResponse{Categories: map[string]float64{"museum": 0.9}})
	}))
	defer server.Close()

	ex := NewHTTPExtractor(server.URL, server.Client(), fanout.Policy{Timeout: time.Second, Retries: 1}, logging.Nop())
	prefs, err := ex.Infer(context.Background(), "museums")

	require.NoError(t, err)
	assert.Equal(t, 0.9, prefs.Categories["museum"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestKeywordExtractor(t *testing.T) {
	ex := NewKeywordExtractor([]string{"museum", "nature_park", "Beach", ""})

	prefs, err := ex.Infer(context.Background(), "A day at the beach, then a Museum and a nature park")

	require.NoError(t, err)
	assert.Equal(t, SourceKeywords, prefs.Source)
	assert.Equal(t, map[string]float64{"beach": 1, "museum": 1, "nature_park": 1}, prefs.Categories)
	assert.Equal(t, []string{"beach", "museum", "nature_park"}, prefs.Keywords)
}

type failingExtractor struct{ err error }

func (f failingExtractor) Infer(ctx context.Context, text string) (models.Preferences, error) {
	return models.Preferences{}, f.err
}

func TestFallbackExtractor(t *testing.T) {
	ex := &FallbackExtractor{
		Primary:   failingExtractor{err: errors.New("down")},
		Secondary: NewKeywordExtractor([]string{"cafe"}),
		Logger:    logging.Nop(),
	}

	prefs, err := ex.Infer(context.Background(), "coffee at a cafe")

	require.NoError(t, err)
	assert.Equal(t, SourceKeywords, prefs.Source)
	assert.Equal(t, 1.0, prefs.Categories["cafe"])
}

func TestFallbackExtractor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := &FallbackExtractor{
		Primary:   failingExtractor{err: context.Canceled},
		Secondary: NewKeywordExtractor([]string{"cafe"}),
	}

	_, err := ex.Infer(ctx, "cafe")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseManual(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   []string
		manual bool
	}{
		{"prefix", "Categories: museum, beach", []string{"museum", "beach"}, true},
		{"lower case with blanks", "  categories:museum,, cafe ", []string{"museum", "cafe"}, true},
		{"empty list", "Categories:", nil, true},
		{"free text", "I like museums", nil, false},
		{"short", "cat", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, manual := ParseManual(tt.text)
			assert.Equal(t, tt.manual, manual)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManual(t *testing.T) {
	prefs := Manual([]string{"museum", " beach ", "museum", ""})

	assert.Equal(t, SourceManual, prefs.Source)
	assert.Equal(t, []string{"museum", "beach"}, prefs.Keywords)
	assert.Equal(t, map[string]float64{"museum": 1, "beach": 1}, prefs.Categories)
}
