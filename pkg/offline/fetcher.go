package offline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/acurth/audioguia/pkg/config"
	"github.com/acurth/audioguia/pkg/version"
)

const fetchBaseDelay = 500 * time.Millisecond

// Fetcher retrieves tour assets over HTTP. Each attempt gets its own bounded
// timeout; transient failures (network errors, 429, 5xx) are retried with
// exponential backoff, hard client errors are not.
type Fetcher struct {
	log      *slog.Logger
	client   *http.Client
	timeout  time.Duration
	attempts int
	ua       string
}

// NewFetcher creates a Fetcher from the offline config.
func NewFetcher(cfg *config.OfflineConfig) *Fetcher {
	return &Fetcher{
		log:      slog.With("component", "fetcher"),
		client:   &http.Client{},
		timeout:  cfg.FetchTimeout.Std(),
		attempts: cfg.FetchAttempts,
		ua:       "audioguia/" + version.Version,
	}
}

// Fetch downloads u and returns the body and response content type.
func (f *Fetcher) Fetch(ctx context.Context, u string) ([]byte, string, error) {
	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			sleepDur := time.Duration(math.Pow(2, float64(attempt-1))) * fetchBaseDelay
			select {
			case <-time.After(sleepDur):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}

		// Verify context is still alive before dialing
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		f.log.Debug("Fetching file", "url", u, "attempt", attempt+1)
		body, ctype, retry, err := f.fetchOnce(ctx, u)
		if err == nil {
			return body, ctype, nil
		}
		if !retry {
			return nil, "", err
		}

		lastErr = err
		f.log.Warn("Fetch attempt failed", "url", u, "attempt", attempt+1, "error", err)
	}

	return nil, "", fmt.Errorf("giving up on %s: %w", u, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, u string) (body []byte, ctype string, retry bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)

	resp, err := f.client.Do(req)
	if err != nil {
		// Check if the error is a cancellation from OUR side
		if ctx.Err() != nil {
			return nil, "", false, ctx.Err()
		}
		return nil, "", true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
		return nil, "", true, fmt.Errorf("server status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, "", false, fmt.Errorf("fetch error: status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", true, fmt.Errorf("read error: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), false, nil
}
