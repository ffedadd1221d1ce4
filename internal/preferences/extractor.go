// Package preferences turns a free-text request into weighted interest
// categories.
package preferences

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

const (
	SourceNLP      = "nlp"
	SourceKeywords = "keywords"
	SourceManual   = "manual"
)

// Extractor infers preferences from free text
type Extractor interface {
	Infer(ctx context.Context, text string) (models.Preferences, error)
}

// ErrExtractionFailed is returned when the extraction service fails
type ErrExtractionFailed struct {
	Reason string
}

func (e *ErrExtractionFailed) Error() string {
	return fmt.Sprintf("preference extraction failed: %s", e.Reason)
}

type httpExtractor struct {
	url        string
	httpClient *http.Client
	policy     fanout.Policy
	logger     *slog.Logger
}

type inferRequest struct {
	Text string `json:"text"`
}

type inferResponse struct {
	Keywords   []string           `json:"keywords"`
	Categories map[string]float64 `json:"categories"`
}

// NewHTTPExtractor calls an extraction service that accepts {"text": ...}
// and answers {"keywords": [...], "categories": {...}}.
func NewHTTPExtractor(url string, httpClient *http.Client, policy fanout.Policy, logger *slog.Logger) Extractor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if policy.Service == "" {
		policy.Service = "preferences"
	}
	return &httpExtractor{
		url:        url,
		httpClient: httpClient,
		policy:     policy,
		logger:     logging.Component(logger, "preferences"),
	}
}

func (e *httpExtractor) Infer(ctx context.Context, text string) (models.Preferences, error) {
	body, err := json.Marshal(inferRequest{Text: text})
	if err != nil {
		return models.Preferences{}, err
	}

	var decoded inferResponse
	err = e.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
		if err != nil {
			return fanout.Permanent(&ErrExtractionFailed{Reason: err.Error()})
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return &ErrExtractionFailed{Reason: err.Error()}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			ferr := &ErrExtractionFailed{Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(msg))}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return fanout.Permanent(ferr)
			}
			return ferr
		}

		decoded = inferResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fanout.Permanent(&ErrExtractionFailed{Reason: "invalid response: " + err.Error()})
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("preference extraction failed", "err", err)
		return models.Preferences{}, err
	}

	prefs := models.Preferences{
		Keywords:   decoded.Keywords,
		Categories: make(map[string]float64, len(decoded.Categories)),
		Source:     SourceNLP,
	}
	for c, w := range decoded.Categories {
		prefs.Categories[c] = clamp(w)
	}
	e.logger.Debug("preferences inferred", "keywords", len(prefs.Keywords), "categories", len(prefs.Categories))
	return prefs, nil
}

func clamp(w float64) float64 {
	switch {
	case w < 0:
		return 0
	case w > 1:
		return 1
	}
	return w
}

// KeywordExtractor matches text against a fixed category vocabulary.
// Every vocabulary entry found in the text gets weight 1.
type KeywordExtractor struct {
	vocabulary []string
}

func NewKeywordExtractor(vocabulary []string) *KeywordExtractor {
	vocab := make([]string, 0, len(vocabulary))
	for _, v := range vocabulary {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			vocab = append(vocab, v)
		}
	}
	sort.Strings(vocab)
	return &KeywordExtractor{vocabulary: vocab}
}

func (k *KeywordExtractor) Infer(ctx context.Context, text string) (models.Preferences, error) {
	normalized := strings.ToLower(strings.ReplaceAll(text, "_", " "))
	prefs := models.Preferences{
		Categories: make(map[string]float64),
		Source:     SourceKeywords,
	}
	for _, v := range k.vocabulary {
		if strings.Contains(normalized, strings.ReplaceAll(v, "_", " ")) {
			prefs.Categories[v] = 1.0
			prefs.Keywords = append(prefs.Keywords, v)
		}
	}
	return prefs, nil
}

// FallbackExtractor uses Primary and switches to Secondary when it fails
type FallbackExtractor struct {
	Primary   Extractor
	Secondary Extractor
	Logger    *slog.Logger
}

func (f *FallbackExtractor) Infer(ctx context.Context, text string) (models.Preferences, error) {
	prefs, err := f.Primary.Infer(ctx, text)
	if err == nil {
		return prefs, nil
	}
	if ctx.Err() != nil {
		return models.Preferences{}, ctx.Err()
	}
	if f.Logger != nil {
		f.Logger.Warn("falling back to keyword preferences", "err", err)
	}
	return f.Secondary.Infer(ctx, text)
}

// Manual builds preferences from explicitly chosen categories, each with weight 1
func Manual(categories []string) models.Preferences {
	prefs := models.Preferences{
		Categories: make(map[string]float64),
		Source:     SourceManual,
	}
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := prefs.Categories[c]; !dup {
			prefs.Keywords = append(prefs.Keywords, c)
		}
		prefs.Categories[c] = 1.0
	}
	return prefs
}

// ParseManual reports whether text uses the "Categories:" prefix and, if so,
// returns the comma separated categories after it.
func ParseManual(text string) ([]string, bool) {
	const prefix = "categories:"
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return nil, false
	}
	var out []string
	for _, part := range strings.Split(trimmed[len(prefix):], ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}
