package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/btcescrow/escrowd/internal/core/ports"
	"github.com/btcescrow/escrowd/pkg/circuitbreaker"
	"github.com/btcescrow/escrowd/pkg/httputil"
)

const (
	maxAttempts = 3
	backoffStep = 2 * time.Second
	contentType = "application/json"
)

type transport struct {
	apiURL string
	cb     *gobreaker.CircuitBreaker
}

// NewTransport returns the raw HTTP relay boundary. Requests that fail on
// the network level are retried with linear backoff before surfacing; a
// relay rejection (non-2xx) is returned as-is, it carries meaning for the
// caller.
func NewTransport(apiURL string) ports.RelayTransport {
	return &transport{
		apiURL: apiURL,
		cb:     circuitbreaker.NewCircuitBreaker("relay"),
	}
}

func (t *transport) Put(
	ctx context.Context, resource ports.RelayResource,
) (*ports.RelayResource, error) {
	body, err := json.Marshal(resource)
	if err != nil {
		return nil, err
	}

	respBody, err := t.request(
		ctx, "POST", fmt.Sprintf("%s/trades", t.apiURL), string(body),
	)
	if err != nil {
		return nil, err
	}

	var accepted ports.RelayResource
	if err := json.Unmarshal([]byte(respBody), &accepted); err != nil {
		return nil, fmt.Errorf("malformed relay response: %w", err)
	}
	return &accepted, nil
}

func (t *transport) Get(
	ctx context.Context, tradeId string, sinceVersion int64,
) ([]ports.RelayResource, error) {
	return t.list(ctx, fmt.Sprintf(
		"%s/trades/%s?since=%s",
		t.apiURL, url.PathEscape(tradeId), strconv.FormatInt(sinceVersion, 10),
	))
}

func (t *transport) GetByOfferId(
	ctx context.Context, offerId string,
) ([]ports.RelayResource, error) {
	return t.list(ctx, fmt.Sprintf(
		"%s/trades?offerId=%s", t.apiURL, url.QueryEscape(offerId),
	))
}

func (t *transport) GetArbitrate(
	ctx context.Context, sinceVersion int64,
) ([]ports.RelayResource, error) {
	return t.list(ctx, fmt.Sprintf(
		"%s/arbitrate?since=%s", t.apiURL, strconv.FormatInt(sinceVersion, 10),
	))
}

func (t *transport) list(ctx context.Context, url string) ([]ports.RelayResource, error) {
	respBody, err := t.request(ctx, "GET", url, "")
	if err != nil {
		return nil, err
	}

	resources := make([]ports.RelayResource, 0)
	if err := json.Unmarshal([]byte(respBody), &resources); err != nil {
		return nil, fmt.Errorf("malformed relay response: %w", err)
	}
	return resources, nil
}

func (t *transport) request(ctx context.Context, method, url, body string) (string, error) {
	resp, err := t.cb.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(time.Duration(attempt) * backoffStep):
				}
			}

			status, respBody, err := httputil.NewHTTPRequest(
				ctx, method, url, body, map[string]string{"Content-Type": contentType},
			)
			if err != nil {
				lastErr = err
				continue
			}
			if status != http.StatusOK {
				return "", fmt.Errorf("relay: %d %s", status, respBody)
			}
			return respBody, nil
		}
		return "", lastErr
	})
	if err != nil {
		return "", err
	}
	return resp.(string), nil
}
