package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spendwatch/spendwatch/internal/feature"
	"github.com/spendwatch/spendwatch/internal/metrics"
)

// HTTPClassifier calls the external model service. The service accepts a
// JSON map of feature name to value and answers with a binary
// overspending flag.
type HTTPClassifier struct {
	baseURL string
	schema  feature.Schema
	client  *http.Client

	mu       sync.Mutex
	lastErr  string
	lastSeen time.Time
}

// NewHTTPClassifier creates a client for the model service at baseURL.
// schema declares the field subset the model was trained with; the
// request payload is projected onto exactly those fields.
func NewHTTPClassifier(baseURL string, schema feature.Schema, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		schema:  schema,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type predictResponse struct {
	OverspendingFlag int `json:"overspending_flag"`
}

// Classify sends the schema projection of v to the model service.
func (c *HTTPClassifier) Classify(ctx context.Context, v feature.Vector) (Verdict, error) {
	payload := make(map[string]float64, len(c.schema.Fields()))
	for _, f := range c.schema.Fields() {
		val, ok := v.Get(f)
		if !ok {
			return "", &feature.MissingFeatureError{Field: f, Reason: "vector does not cover classifier schema"}
		}
		payload[f] = val.Value
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict/", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	timer := prometheus.NewTimer(metrics.ClassifierDuration)
	resp, err := c.client.Do(req)
	timer.ObserveDuration()
	if err != nil {
		c.noteFailure(err.Error())
		return "", fmt.Errorf("call model service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.noteFailure(fmt.Sprintf("status %d", resp.StatusCode))
		return "", fmt.Errorf("model service returned status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.noteFailure(err.Error())
		return "", fmt.Errorf("decode predict response: %w", err)
	}

	c.noteSuccess()
	if out.OverspendingFlag == 1 {
		return Outlier, nil
	}
	return Normal, nil
}

// Reachable reports the outcome of the most recent model service call,
// for the health registry.
func (c *HTTPClassifier) Reachable() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSeen.IsZero() {
		return true, "no calls yet"
	}
	return c.lastErr == "", c.lastErr
}

func (c *HTTPClassifier) noteSuccess() {
	c.mu.Lock()
	c.lastErr = ""
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *HTTPClassifier) noteFailure(detail string) {
	c.mu.Lock()
	c.lastErr = detail
	c.lastSeen = time.Now()
	c.mu.Unlock()
}
