package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bidsmirror/internal/config"
	"bidsmirror/internal/hosting"
)

const (
	dandiAttempts  = 3
	dandiBaseDelay = time.Second
	dandiMaxDelay  = 10 * time.Second
	// maxPages bounds pagination in case the archive returns a cyclic next link.
	maxPages = 10000
)

// DandiSource lists dandisets from the DANDI archive REST API.
type DandiSource struct {
	baseURL  string
	pageSize int
	client   *http.Client
	sleeper  func(time.Duration)
}

// NewDandiSource builds a DandiSource from the catalog config.
func NewDandiSource(cfg config.Catalog) *DandiSource {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DandiSource{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: cfg.PageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

type dandisetPage struct {
	Next    *string `json:"next"`
	Results []struct {
		Identifier string `json:"identifier"`
	} `json:"results"`
}

// List follows the paginated dandisets listing to the end.
func (s *DandiSource) List(ctx context.Context) ([]Unit, error) {
	query := url.Values{}
	if s.pageSize > 0 {
		query.Set("page_size", strconv.Itoa(s.pageSize))
	}
	next := s.baseURL + "/dandisets/"
	if encoded := query.Encode(); encoded != "" {
		next += "?" + encoded
	}

	var units []Unit
	for page := 0; next != ""; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("dandi catalog: exceeded %d pages", maxPages)
		}
		body, err := s.fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		var decoded dandisetPage
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("dandi catalog: decode page %d: %w", page+1, err)
		}
		for _, r := range decoded.Results {
			if id := strings.TrimSpace(r.Identifier); id != "" {
				units = append(units, Unit{ID: id})
			}
		}
		next = ""
		if decoded.Next != nil {
			next = *decoded.Next
		}
	}
	return units, nil
}

func (s *DandiSource) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= dandiAttempts; attempt++ {
		body, retry, err := s.fetchOnce(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || attempt == dandiAttempts {
			break
		}
		if err := hosting.Sleep(ctx, s.sleeper, hosting.Backoff(dandiBaseDelay, dandiMaxDelay, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("dandi catalog: %w", lastErr)
}

func (s *DandiSource) fetchOnce(ctx context.Context, endpoint string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	return body, false, nil
}
