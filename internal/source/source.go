// Package source fetches demographic data from the third-party provider.
// Nothing returned here is trusted; callers must pass Data through the validator.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/demolens/internal/validate"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

// Sentinel errors for data source failures.
var (
	ErrSourceUnreachable = errors.New("data source unreachable")
	ErrSourceTimeout     = errors.New("data source timeout")
	ErrBadResponse       = errors.New("data source bad response")
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 1 << 20

// Source is the contract the processor depends on.
type Source interface {
	Fetch(ctx context.Context, dataURL string) (*models.ThirdPartyResponse, error)
}

// HTTPClient implements Source against the provider's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Source = (*HTTPClient)(nil)

// NewHTTPClient creates a client; timeout bounds each Fetch end to end.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Fetch(ctx context.Context, dataURL string) (*models.ThirdPartyResponse, error) {
	u := fmt.Sprintf("%s/v1/demographics?%s", c.baseURL, url.Values{"dataUrl": {dataURL}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyError(err)
	}

	out, err := validate.DecodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding body: %v", ErrBadResponse, err)
	}
	return out, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
}
