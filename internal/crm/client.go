package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/metrics"

	"golang.org/x/time/rate"
)

const (
	searchPageSize = 200
	// maxSearchPages bounds a single partner fetch at 10k records.
	maxSearchPages     = 50
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 2048
)

// AccessTokenProvider supplies bearer tokens. Invalidate is called after a 401.
type AccessTokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Logger            *logger.Logger
}

// Client calls the CRM REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     AccessTokenProvider
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient creates a client. BaseURL is the API root, e.g.
// https://www.zohoapis.com/crm/v2.
func NewClient(tokens AccessTokenProvider, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		limiter:    rate.NewLimiter(limit, burst),
		log:        opts.Logger,
	}
}

// SearchLeadsByPartner returns every lead whose StrategicPartnerId equals the
// partner's CRM vendor id. No records is an empty slice, not an error.
func (c *Client) SearchLeadsByPartner(ctx context.Context, partnerExternalID string) ([]RawLead, error) {
	return search[RawLead](ctx, c, "crm.search_leads", "Leads", "StrategicPartnerId", partnerExternalID)
}

// SearchDealsByPartner returns every deal whose Partners_Id equals the
// partner's CRM vendor id.
func (c *Client) SearchDealsByPartner(ctx context.Context, partnerExternalID string) ([]RawDeal, error) {
	return search[RawDeal](ctx, c, "crm.search_deals", "Deals", "Partners_Id", partnerExternalID)
}

func search[T any](ctx context.Context, c *Client, op, module, field, value string) ([]T, error) {
	if strings.TrimSpace(value) == "" {
		return nil, apperr.Validation("partner external id is required").WithOp(op)
	}

	criteria := fmt.Sprintf("(%s:equals:%s)", field, escapeCriteria(value))
	records := make([]T, 0)
	for page := 1; page <= maxSearchPages; page++ {
		q := url.Values{}
		q.Set("criteria", criteria)
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(searchPageSize))

		var resp searchResponse[T]
		status, err := c.do(ctx, op, http.MethodGet, "/"+module+"/search?"+q.Encode(), nil, &resp)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if status == http.StatusNoContent {
			return records, nil
		}
		records = append(records, resp.Data...)
		if !resp.Info.MoreRecords {
			return records, nil
		}
	}
	// more_records was still set on the last allowed page.
	return nil, apperr.Upstream(fmt.Sprintf("%s search exceeded %d pages", strings.ToLower(module), maxSearchPages), nil).WithOp(op)
}

// CreateLead inserts a lead and returns its CRM id.
func (c *Client) CreateLead(ctx context.Context, in LeadInput) (string, error) {
	const op = "crm.create_lead"
	var resp writeResponse
	if _, err := c.do(ctx, op, http.MethodPost, "/Leads", writeRequest{Data: []LeadInput{in}}, &resp); err != nil {
		return "", err
	}
	result, err := firstResult(op, resp)
	if err != nil {
		return "", err
	}
	if result.Details.ID == "" {
		return "", apperr.Upstream("crm returned no lead id", nil).WithOp(op)
	}
	return result.Details.ID, nil
}

// UpdateLead patches the lead with the given CRM id.
func (c *Client) UpdateLead(ctx context.Context, id string, in LeadInput) error {
	const op = "crm.update_lead"
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("crm lead id is required").WithOp(op)
	}
	var resp writeResponse
	if _, err := c.do(ctx, op, http.MethodPut, "/Leads/"+url.PathEscape(id), writeRequest{Data: []LeadInput{in}}, &resp); err != nil {
		return err
	}
	_, err := firstResult(op, resp)
	return err
}

func firstResult(op string, resp writeResponse) (writeResult, error) {
	if len(resp.Data) == 0 {
		return writeResult{}, apperr.Upstream("crm returned an empty write result", nil).WithOp(op)
	}
	r := resp.Data[0]
	if !strings.EqualFold(r.Status, "success") {
		return writeResult{}, apperr.Upstream(fmt.Sprintf("crm rejected write: %s %s", r.Code, r.Message), nil).WithOp(op)
	}
	return r, nil
}

// do sends one request, retrying once with a fresh token on 401.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	status, err := c.attempt(ctx, op, method, path, body, out)
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate(ctx)
		status, err = c.attempt(ctx, op, method, path, body, out)
	}
	return status, err
}

func (c *Client) attempt(ctx context.Context, op, method, path string, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, apperr.Upstream("crm rate limiter", err).WithOp(op)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return 0, apperr.Upstream("crm access token unavailable", err).WithOp(op)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordCRMRequest(op, 0)
		return 0, apperr.Upstream("crm request failed", err).WithOp(op)
	}
	defer resp.Body.Close()
	metrics.RecordCRMRequest(op, resp.StatusCode)

	if c.log != nil {
		c.log.Debug("crm request", "operation", op, "status", resp.StatusCode, "latencyMs", time.Since(start).Milliseconds())
	}

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return resp.StatusCode, apperr.Upstream(
			fmt.Sprintf("crm responded %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		).WithOp(op)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, apperr.Upstream("decode crm response", err).WithOp(op)
		}
	}
	return resp.StatusCode, nil
}

// escapeCriteria escapes the characters Zoho treats as criteria syntax.
func escapeCriteria(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, `,`, `\,`)
	return r.Replace(strings.TrimSpace(v))
}
