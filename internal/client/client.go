// Package client holds the two upstream clients of the listing repository:
// the primary listings API and the read-view fallback. Both normalize their
// response shapes into model.Listing and classify failures into the shared
// error taxonomy, so the repository can decide between retry, fallback and
// propagation without inspecting HTTP details.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openpantry/listings/internal/model"
)

// getJSON issues a GET request and decodes the JSON body into dest.
// Transport failures are classified transient (except caller cancellation);
// body decode failures become DecodeError.
func getJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, op, source string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return model.Transient(op, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(op, resp.StatusCode); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &model.DecodeError{Source: source, Err: err}
	}

	return nil
}

// classifyStatus maps an upstream HTTP status into the error taxonomy.
// 5xx and 429 are transient (retryable, fallback-eligible); 404 and
// 401/403 propagate as-is.
func classifyStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return model.ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, model.ErrUnauthorized)
	case status == http.StatusTooManyRequests || status >= 500:
		return model.Transient(op, fmt.Errorf("upstream status %d", status))
	default:
		return fmt.Errorf("%s: unexpected upstream status %d", op, status)
	}
}
