package dispatchsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Dispatchline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v1",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Order is the API work order model.
type Order struct {
	ID             string    `json:"id"`
	ContractID     *string   `json:"contract_id,omitempty"`
	SiteID         string    `json:"site_id"`
	WorkerID       string    `json:"worker_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	WorkType       string    `json:"work_type,omitempty"`
	LifecycleState string    `json:"lifecycle_state"`
	Memo           string    `json:"memo,omitempty"`
	Version        int64     `json:"version"`
}

// Status is the merged live status of an order.
type Status struct {
	OrderID      string     `json:"order_id"`
	Status       string     `json:"status"`
	WarningLevel int        `json:"warning_level"`
	LastUpdateAt *time.Time `json:"last_update_at,omitempty"`
	ReasonCode   string     `json:"reason_code,omitempty"`
	Trouble      bool       `json:"trouble,omitempty"`
}

// OrderView pairs an order with its status.
type OrderView struct {
	Order  Order  `json:"order"`
	Status Status `json:"status"`
}

// OrderInput creates an order or, with ExpectedVersion set, patches one.
// Times are either BusinessDate with HH:MM Start/End or absolute StartAt/EndAt.
type OrderInput struct {
	ID              string     `json:"id,omitempty"`
	ExpectedVersion int64      `json:"expected_version,omitempty"`
	ContractID      *string    `json:"contract_id,omitempty"`
	SiteID          string     `json:"site_id,omitempty"`
	WorkerID        string     `json:"worker_id,omitempty"`
	BusinessDate    string     `json:"business_date,omitempty"`
	Start           string     `json:"start,omitempty"`
	End             string     `json:"end,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	WorkType        string     `json:"work_type,omitempty"`
	Memo            string     `json:"memo,omitempty"`
}

// CheckResult reports whether a candidate could be saved.
type CheckResult struct {
	OK                  bool     `json:"ok"`
	Candidate           Order    `json:"candidate"`
	ConflictingOrderIDs []string `json:"conflicting_order_ids,omitempty"`
}

// Window is the business-day range a report covers.
type Window struct {
	View     string    `json:"view"`
	Date     string    `json:"date"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	DayCount int       `json:"day_count"`
}

// LaneLayout assigns overlapping orders of one worker to display lanes.
type LaneLayout struct {
	Lanes     map[string]int `json:"lanes"`
	LaneCount int            `json:"lane_count"`
}

// Timeline is a window of orders with their live status.
type Timeline struct {
	Window        Window                `json:"window"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Orders        []Order               `json:"orders"`
	StatusByOrder map[string]Status     `json:"status_by_order"`
	LanesByWorker map[string]LaneLayout `json:"lanes_by_worker,omitempty"`
	WorkerNames   map[string]string     `json:"worker_names"`
	SiteNames     map[string]string     `json:"site_names"`
}

// Capacity summarizes planned load against the roster.
type Capacity struct {
	Window   Window `json:"window"`
	Capacity struct {
		Used        int     `json:"used"`
		Workers     int     `json:"workers"`
		Days        int     `json:"days"`
		SafeCap     int     `json:"safe_cap"`
		StandardCap int     `json:"standard_cap"`
		MaxCap      int     `json:"max_cap"`
		Utilization float64 `json:"utilization"`
		Level       string  `json:"level"`
	} `json:"capacity"`
}

// IngestResult is the outcome of recording a status event.
type IngestResult struct {
	EventID       int64  `json:"event_id"`
	Status        Status `json:"status"`
	QuotaConsumed bool   `json:"quota_consumed"`
	MonthKey      string `json:"month_key,omitempty"`
}

// Contract is a site agreement with an optional monthly quota.
type Contract struct {
	ID              string         `json:"id"`
	SiteID          string         `json:"site_id"`
	Kind            string         `json:"kind"`
	MonthlyQuota    int            `json:"monthly_quota"`
	ConsumedByMonth map[string]int `json:"consumed_by_month,omitempty"`
}

// Quota is a contract's usage for one business month.
type Quota struct {
	ContractID string `json:"contract_id"`
	Month      string `json:"month"`
	Used       int    `json:"used"`
	Quota      int    `json:"quota"`
	Remaining  *int   `json:"remaining"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports whether err is a rejected overlapping write.
func IsConflict(err error) bool {
	return hasCode(err, "conflict")
}

// IsStaleWrite reports whether err is a write based on an outdated version.
func IsStaleWrite(err error) bool {
	return hasCode(err, "stale_write")
}

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// CreateOrder creates an order.
func (c *Client) CreateOrder(ctx context.Context, in OrderInput) (Order, error) {
	in.ExpectedVersion = 0
	var resp Order
	err := c.do(ctx, http.MethodPost, "orders", in, &resp)
	return resp, err
}

// UpdateOrder patches an order at in.ExpectedVersion.
func (c *Client) UpdateOrder(ctx context.Context, id string, in OrderInput) (Order, error) {
	in.ID = ""
	var resp Order
	err := c.do(ctx, http.MethodPatch, "orders/"+url.PathEscape(id), in, &resp)
	return resp, err
}

// CheckOrder validates a create (or, with id and version, a patch) without writing.
func (c *Client) CheckOrder(ctx context.Context, id string, in OrderInput) (CheckResult, error) {
	body := struct {
		OrderInput
		OrderID string `json:"order_id,omitempty"`
	}{OrderInput: in, OrderID: id}
	body.ID = ""
	var resp CheckResult
	err := c.do(ctx, http.MethodPost, "orders/check", body, &resp)
	return resp, err
}

// CancelOrder cancels an order at expectedVersion.
func (c *Client) CancelOrder(ctx context.Context, id string, expectedVersion int64) (Order, error) {
	body := map[string]any{"expected_version": expectedVersion}
	var resp Order
	err := c.do(ctx, http.MethodPost, "orders/"+url.PathEscape(id)+"/cancel", body, &resp)
	return resp, err
}

// GetOrder fetches an order with its live status.
func (c *Client) GetOrder(ctx context.Context, id string) (OrderView, error) {
	var resp OrderView
	err := c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListOrders lists orders starting in [from, to). Bounds are YYYY-MM-DD business dates or RFC3339.
func (c *Client) ListOrders(ctx context.Context, from, to, workerID string, includeCancelled bool) ([]Order, error) {
	q := url.Values{}
	setIf(q, "from", from)
	setIf(q, "to", to)
	if workerID != "" {
		q.Set("worker_id", workerID)
	}
	if includeCancelled {
		q.Set("include_cancelled", "true")
	}
	var resp []Order
	err := c.do(ctx, http.MethodGet, withQuery("orders", q), nil, &resp)
	return resp, err
}

// Timeline returns the orders of a day, week or month view.
func (c *Client) Timeline(ctx context.Context, view, date string, includeCancelled bool) (Timeline, error) {
	q := url.Values{}
	setIf(q, "view", view)
	setIf(q, "date", date)
	if includeCancelled {
		q.Set("include_cancelled", "true")
	}
	var resp Timeline
	err := c.do(ctx, http.MethodGet, withQuery("timeline", q), nil, &resp)
	return resp, err
}

// Capacity returns planned load for a view.
func (c *Client) Capacity(ctx context.Context, view, date string) (Capacity, error) {
	q := url.Values{}
	setIf(q, "view", view)
	setIf(q, "date", date)
	var resp Capacity
	err := c.do(ctx, http.MethodGet, withQuery("capacity", q), nil, &resp)
	return resp, err
}

// IngestStatus records a progress event. A zero updatedAt means now.
func (c *Client) IngestStatus(ctx context.Context, orderID, progress, reason string, updatedAt time.Time) (IngestResult, error) {
	body := map[string]any{"order_id": orderID, "progress_state": progress}
	if reason != "" {
		body["reason_code"] = reason
	}
	if !updatedAt.IsZero() {
		body["updated_at"] = updatedAt.Format(time.RFC3339Nano)
	}
	var resp IngestResult
	err := c.do(ctx, http.MethodPost, "status-events", body, &resp)
	return resp, err
}

// CreateContract creates a contract.
func (c *Client) CreateContract(ctx context.Context, id, siteID, kind string, monthlyQuota int) (Contract, error) {
	body := map[string]any{"id": id, "site_id": siteID, "monthly_quota": monthlyQuota}
	if kind != "" {
		body["kind"] = kind
	}
	var resp Contract
	err := c.do(ctx, http.MethodPost, "contracts", body, &resp)
	return resp, err
}

// GetContract fetches a contract with its per-month consumption.
func (c *Client) GetContract(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodGet, "contracts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Quota returns usage for a business month (empty month means current).
func (c *Client) Quota(ctx context.Context, contractID, month string) (Quota, error) {
	q := url.Values{}
	setIf(q, "month", month)
	var resp Quota
	err := c.do(ctx, http.MethodGet, withQuery("contracts/"+url.PathEscape(contractID)+"/quota", q), nil, &resp)
	return resp, err
}

// ReconcileQuota back-fills consumption for done orders of a month.
func (c *Client) ReconcileQuota(ctx context.Context, month string) (int, error) {
	var resp struct {
		Added int `json:"added"`
	}
	err := c.do(ctx, http.MethodPost, "quota/reconcile", map[string]any{"month": month}, &resp)
	return resp.Added, err
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
