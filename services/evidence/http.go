// Package evidencesvc verifies that report evidence URLs point at something
// that actually exists.
package evidencesvc

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

type httpChecker struct {
	client *http.Client
}

// NewHTTPChecker probes evidence URLs with a HEAD request. Anything under 400
// counts as present.
func NewHTTPChecker(timeout time.Duration) *httpChecker {
	return &httpChecker{client: &http.Client{Timeout: timeout}}
}

func (c *httpChecker) Check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return errors.Wrap(err, "building evidence request")
	}
	res, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "probing evidence url")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("evidence url returned status %d", res.StatusCode)
	}
	return nil
}

// StaticChecker accepts or rejects specific URLs; tests and local dev.
type StaticChecker struct {
	Rejected map[string]bool
}

func (c StaticChecker) Check(ctx context.Context, url string) error {
	if c.Rejected[url] {
		return errors.New("evidence url rejected")
	}
	return nil
}
