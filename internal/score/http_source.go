package score

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// maxResponseSize bounds the score service response body.
const maxResponseSize = 4 * 1024

// HTTPSource resolves scores from an external score service over HTTP. Every
// call carries a bounded timeout; a call that outlives it fails rather than
// hanging the pipeline.
type HTTPSource struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
}

// NewHTTPSource creates a source calling the service at baseURL.
func NewHTTPSource(baseURL, apiKey string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
	}
}

type scoreResponse struct {
	Score     int       `json:"score"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Resolve fetches the subject's score. Timeouts, transport errors, non-200
// statuses, and unparseable bodies all resolve to (0, error).
func (s *HTTPSource) Resolve(ctx context.Context, subject string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/subjects/%s/score", s.baseURL, url.PathEscape(subject))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrScoreUnavailable, err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrScoreUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: score service returned %d", domain.ErrScoreUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrScoreUnavailable, err)
	}

	var parsed scoreResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrScoreUnavailable, err)
	}

	return clamp(parsed.Score), nil
}
