package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/tidwall/gjson"
)

const (
	defaultPredictTimeout = 30 * time.Second
	maxErrorBodyBytes     = 512
	contentTypeJSON       = "application/json"
	modelStateAvailable   = "AVAILABLE"
)

// TFServingPredictor calls a TensorFlow Serving REST endpoint
type TFServingPredictor struct {
	baseURL   string
	modelName string
	client    *http.Client
}

// NewTFServingPredictor creates a predictor for modelName served at baseURL
func NewTFServingPredictor(baseURL, modelName string, timeout time.Duration) *TFServingPredictor {
	if timeout <= 0 {
		timeout = defaultPredictTimeout
	}
	return &TFServingPredictor{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelName: modelName,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name returns the served model name
func (p *TFServingPredictor) Name() string {
	return p.modelName
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

// Predict sends one window as a batch of one and parses the named outputs
func (p *TFServingPredictor) Predict(ctx context.Context, window [][]float64) (*RawPrediction, error) {
	span := sentry.StartSpan(ctx, "model.predict")
	span.Description = p.modelName
	defer span.Finish()

	body, err := json.Marshal(predictRequest{Instances: [][][]float64{window}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode predict request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:predict", p.baseURL, p.modelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := p.client.Do(req)
	if err != nil {
		span.Status = sentry.SpanStatusUnavailable
		return nil, fmt.Errorf("model %s predict failed: %w", p.modelName, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read predict response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("model %s returned %d: %s", p.modelName, resp.StatusCode, truncate(string(payload), maxErrorBodyBytes))
	}

	return ParsePrediction(payload)
}

// ParsePrediction decodes a TF Serving predict response. Named outputs with
// more than one value are logits; single values are scalars.
func ParsePrediction(payload []byte) (*RawPrediction, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("predict response is not valid JSON")
	}

	first := gjson.GetBytes(payload, "predictions.0")
	if !first.Exists() {
		first = gjson.GetBytes(payload, "outputs")
	}
	if !first.Exists() || !first.IsObject() {
		return nil, fmt.Errorf("predict response has no named outputs")
	}

	pred := NewRawPrediction()
	first.ForEach(func(key, value gjson.Result) bool {
		values := flatten(value)
		switch {
		case len(values) == 1:
			pred.Values[Field(key.String())] = values[0]
		case len(values) > 1:
			pred.Logits[Field(key.String())] = values
		}
		return true
	})

	if len(pred.Values) == 0 && len(pred.Logits) == 0 {
		return nil, fmt.Errorf("predict response outputs are empty")
	}
	return pred, nil
}

// flatten collapses nested arrays like [[0.1, 0.2]] into one slice
func flatten(value gjson.Result) []float64 {
	if !value.IsArray() {
		if value.Type == gjson.Number {
			return []float64{value.Float()}
		}
		return nil
	}
	var out []float64
	for _, item := range value.Array() {
		out = append(out, flatten(item)...)
	}
	return out
}

// CheckAvailable queries the model status endpoint and fails unless a
// version of the model is AVAILABLE
func (p *TFServingPredictor) CheckAvailable(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/models/%s", p.baseURL, p.modelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("model %s unreachable: %w", p.modelName, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model %s status returned %d", p.modelName, resp.StatusCode)
	}

	for _, state := range gjson.GetBytes(payload, "model_version_status.#.state").Array() {
		if state.String() == modelStateAvailable {
			return nil
		}
	}
	return fmt.Errorf("model %s has no available version", p.modelName)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
