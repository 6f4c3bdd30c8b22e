package masterdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dispatchline/internal/domain"
)

// HTTPDirectory queries the external master data REST service:
// GET {BaseURL}/workers/{id} and GET {BaseURL}/sites/{id}, each answering {"display_name": "..."}.
type HTTPDirectory struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{BaseURL: baseURL, Timeout: 3 * time.Second}
}

func (d *HTTPDirectory) WorkerName(ctx context.Context, id string) (string, error) {
	return d.lookup(ctx, "workers", id)
}

func (d *HTTPDirectory) SiteName(ctx context.Context, id string) (string, error) {
	return d.lookup(ctx, "sites", id)
}

func (d *HTTPDirectory) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: d.Timeout}
}

func (d *HTTPDirectory) lookup(ctx context.Context, collection, id string) (string, error) {
	endpoint := strings.TrimRight(d.BaseURL, "/") + "/" + collection + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	res, err := d.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%s %s: %w", collection, id, domain.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("master data %s %s: status %d: %s", collection, id, res.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		DisplayName string `json:"display_name"`
		Name        string `json:"name"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode master data %s %s: %w", collection, id, err)
	}
	if payload.DisplayName != "" {
		return payload.DisplayName, nil
	}
	return payload.Name, nil
}
