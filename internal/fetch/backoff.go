package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v5"
)

// retriableStatus reports whether an HTTP status should be retried:
// any 5xx, or 429 specifically. Other 4xx responses are treated as
// permanent client errors.
func retriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

type permanentStatusError struct {
	status int
	body   string
}

func (e *permanentStatusError) Error() string {
	return fmt.Sprintf("non-retriable status %d: %s", e.status, e.body)
}

func doWithBackoff(ctx context.Context, do func() (*http.Response, error)) (*http.Response, error) {
	op := func() (*http.Response, error) {
		resp, err := do()
		if err != nil {
			return nil, err
		}
		if retriableStatus(resp.StatusCode) {
			resp.Body.Close()
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		if resp.StatusCode/100 == 4 {
			resp.Body.Close()
			return nil, backoff.Permanent(&permanentStatusError{status: resp.StatusCode})
		}
		return resp, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
}
