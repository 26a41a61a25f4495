package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/marker-engine/internal/models"
)

const defaultHealthTTL = 30 * time.Second

// HTTPEnricher delegates enrichment to a remote NLP sidecar speaking JSON over HTTP.
type HTTPEnricher struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *slog.Logger

	healthTTL time.Duration
	now       func() time.Time

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// NewHTTPEnricher constructs a client targeting the sidecar at baseURL.
func NewHTTPEnricher(baseURL, language string, timeout time.Duration, logger *slog.Logger) *HTTPEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEnricher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		healthTTL:  defaultHealthTTL,
		now:        time.Now,
	}
}

type enrichResponse struct {
	Tokens    []string             `json:"tokens"`
	Sentences []string             `json:"sentences"`
	POSTags   []models.POSTag      `json:"pos_tags"`
	Entities  []models.NamedEntity `json:"entities"`
	Sentiment map[string]float64   `json:"sentiment"`
	Version   string               `json:"version"`
}

// Enrich posts the text to the sidecar and copies its annotations into actx.
func (h *HTTPEnricher) Enrich(ctx context.Context, actx *models.AnalysisContext) error {
	if h == nil || h.baseURL == "" {
		return fmt.Errorf("nlp sidecar base URL not configured")
	}
	language := actx.Language
	if language == "" {
		language = h.language
	}
	payload := map[string]any{
		"text":     actx.Text,
		"language": language,
	}

	var response enrichResponse
	if err := h.postJSON(ctx, h.resolvePath("/enrich"), payload, &response); err != nil {
		h.markHealth(false)
		return fmt.Errorf("nlp sidecar enrich request failed: %w", err)
	}

	actx.Tokens = response.Tokens
	if actx.Tokens == nil {
		actx.Tokens = Tokenize(actx.Text)
	}
	actx.Sentences = response.Sentences
	actx.POSTags = response.POSTags
	actx.NamedEntities = response.Entities
	actx.SentimentScores = response.Sentiment
	actx.Metadata["nlp_service"] = h.Name()
	if response.Version != "" {
		actx.Metadata["nlp_version"] = response.Version
	}
	return nil
}

// IsAvailable probes GET /health, caching the answer for a short interval.
func (h *HTTPEnricher) IsAvailable() bool {
	if h == nil || h.baseURL == "" {
		return false
	}
	h.mu.Lock()
	if !h.checkedAt.IsZero() && h.now().Sub(h.checkedAt) < h.healthTTL {
		healthy := h.healthy
		h.mu.Unlock()
		return healthy
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.httpClient.Timeout)
	defer cancel()
	healthy := h.probe(ctx)
	if !healthy {
		h.logger.Warn("nlp sidecar health probe failed", slog.String("endpoint", h.baseURL))
	}
	h.markHealth(healthy)
	return healthy
}

// Name identifies the backend in result metadata.
func (h *HTTPEnricher) Name() string { return "remote" }

func (h *HTTPEnricher) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.resolvePath("/health"), nil)
	if err != nil {
		return false
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (h *HTTPEnricher) markHealth(healthy bool) {
	h.mu.Lock()
	h.healthy = healthy
	h.checkedAt = h.now()
	h.mu.Unlock()
}

func (h *HTTPEnricher) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return h.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (h *HTTPEnricher) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nlp sidecar returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
