package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"notigate/internal/model"
)

// HTTPPredictor calls a remote scoring model. The request carries the
// notification and context snapshot; the response is {"score": float}.
// Per-call deadlines come from the caller's context; Timeout is a hard
// upper bound on the underlying client.
type HTTPPredictor struct {
	url    string
	client *http.Client
}

func NewHTTPPredictor(url string, timeout time.Duration) *HTTPPredictor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPPredictor{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Notification model.Notification    `json:"notification"`
	Context      model.ContextSnapshot `json:"context"`
}

type predictResponse struct {
	Score float64 `json:"score"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, n model.Notification, snapshot model.ContextSnapshot) (float64, error) {
	payload, err := json.Marshal(predictRequest{Notification: n, Context: snapshot})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("predictor returned status %d", resp.StatusCode)
	}
	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Score < 0 {
		out.Score = 0
	}
	if out.Score > 1 {
		out.Score = 1
	}
	return out.Score, nil
}
