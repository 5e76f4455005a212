package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls the win-probability model served as a sidecar HTTP service.
// It is a thin boundary: model loading and training live outside this
// repository.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Features map[string]float64 `json:"features"`
}

type predictResponse struct {
	Probability float64 `json:"probability"`
}

// WinProbability posts the feature vector and returns the predicted win
// probability in [0,1].
func (c *Client) WinProbability(ctx context.Context, features map[string]float64) (float64, error) {
	body, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("predictor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("predictor returned status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode prediction: %w", err)
	}
	if out.Probability < 0 || out.Probability > 1 {
		return 0, fmt.Errorf("predictor returned probability %f outside [0,1]", out.Probability)
	}
	return out.Probability, nil
}
