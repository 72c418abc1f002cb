package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"orchctl/common"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// FleetClient is typed access to the fleet-management API. It makes one
// attempt per call; there are no retries.
type FleetClient struct {
	cfg  *common.Config
	http *http.Client
	log  *common.Logger
}

// NewFleetClient never fails: missing configuration is reported by each
// call so that callers allowed to degrade can do so.
func NewFleetClient(cfg *common.Config, log *common.Logger) *FleetClient {
	return NewFleetClientWithTransport(cfg, log, http.DefaultTransport)
}

// NewFleetClientWithTransport is NewFleetClient over a custom base transport.
func NewFleetClientWithTransport(cfg *common.Config, log *common.Logger, base http.RoundTripper) *FleetClient {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken, TokenType: "Bearer"})
	return &FleetClient{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Transport: &oauth2.Transport{Source: src, Base: base}},
	}
}

// ListHosts fetches GET {base}/api/servers/.
func (c *FleetClient) ListHosts(ctx context.Context) ([]common.Host, error) {
	if err := c.cfg.RequireAPI(); err != nil {
		return nil, err
	}
	url := c.cfg.ServersURL()
	body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var hosts []common.Host
	if err := json.Unmarshal(body, &hosts); err != nil {
		return nil, fmt.Errorf("%w: decode GET %s: %w", common.ErrMalformedResponse, url, err)
	}
	c.log.Debugf("fleet: listed %d hosts", len(hosts))
	return hosts, nil
}

// FindHost scans the full host list for a record whose hostname or IP
// equals target. The API has no server-side filter.
func (c *FleetClient) FindHost(ctx context.Context, target string) (common.Host, error) {
	hosts, err := c.ListHosts(ctx)
	if err != nil {
		return common.Host{}, err
	}
	for _, h := range hosts {
		if h.Matches(target) {
			return h, nil
		}
	}
	return common.Host{}, fmt.Errorf("%w: %q", common.ErrTargetNotFound, target)
}

// PatchHostStatus sends PATCH {base}/api/servers/{id} with fields as the
// JSON body. Any 2xx is success.
func (c *FleetClient) PatchHostStatus(ctx context.Context, id string, fields map[string]any) error {
	if err := c.cfg.RequireAPI(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: host record has no id", common.ErrMalformedResponse)
	}
	if _, err := c.do(ctx, http.MethodPatch, c.cfg.ServerURL(id), fields); err != nil {
		return err
	}
	c.log.Debugf("fleet: patched host %s (%d fields)", id, len(fields))
	return nil
}

func (c *FleetClient) do(ctx context.Context, method, url string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", method, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %w", common.ErrConfigurationMissing, common.EnvAPIURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", common.ErrTransport, method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", common.ErrTransport, method, url, err)
	}
	c.log.Debugf("fleet: %s %s -> %d", method, url, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &common.APIError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
