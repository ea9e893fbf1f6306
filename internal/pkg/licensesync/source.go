package licensesync

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

	"github.com/gofiber/fiber/v2/log"

	"github.com/licensedesk/licensedesk/internal/pkg/env"
)

const (
	defaultVendorPageSize   = 100
	defaultVendorMaxRetries = 3
	defaultVendorTimeout    = 15 * time.Second
	vendorRetryDelay        = 2 * time.Second
	vendorDateLayout        = "2006-01-02"
)

// Source is the vendor license API as consumed by the orchestrator.
type Source interface {
	FetchAll(ctx context.Context) ([]ExternalLicenseRecord, error)
	UpdateByAppID(ctx context.Context, appID string, fields map[string]interface{}) error
	UpdateByEmail(ctx context.Context, email string, fields map[string]interface{}) error
}

// Client talks to the vendor license API. Fetches are paginated; transient
// failures (network errors, 5xx) are retried a bounded number of times before
// the run is aborted with ErrSourceUnavailable.
type Client struct {
	BaseURL    string
	APIKey     string
	PageSize   int
	MaxRetries int
	RetryDelay time.Duration

	HTTPClient *http.Client
}

// NewClientFromEnv builds a vendor client from environment configuration.
func NewClientFromEnv() *Client {
	pageSize := defaultVendorPageSize
	if v, err := strconv.Atoi(env.GetEnv("VENDOR_API_PAGE_SIZE", "")); err == nil && v > 0 {
		pageSize = v
	}
	return &Client{
		BaseURL:    strings.TrimRight(env.GetEnv("VENDOR_API_BASE_URL", ""), "/"),
		APIKey:     strings.TrimSpace(env.GetEnv("VENDOR_API_KEY", "")),
		PageSize:   pageSize,
		MaxRetries: defaultVendorMaxRetries,
		HTTPClient: &http.Client{
			Timeout: defaultVendorTimeout,
		},
	}
}

// vendorLicensePayload is the wire shape of one vendor license record.
type vendorLicensePayload struct {
	CountID           int             `json:"count_id"`
	AppID             *string         `json:"app_id"`
	LicenseType       string          `json:"license_type"`
	MerchantID        string          `json:"merchant_id"`
	Email             *string         `json:"email"`
	BusinessName      string          `json:"business_name"`
	Zip               string          `json:"zip"`
	ActivateDate      string          `json:"activate_date"`
	ComingExpiredDate string          `json:"coming_expired_date"`
	MonthlyFee        float64         `json:"monthly_fee"`
	SMSBalance        int             `json:"sms_balance"`
	Note              string          `json:"note"`
	PackageFlags      map[string]bool `json:"package_flags"`
	WorkspaceID       *string         `json:"workspace_id"`
	LastActive        string          `json:"last_active"`
	Status            int             `json:"status"`
}

type vendorListResponse struct {
	Items   []json.RawMessage `json:"items"`
	Page    int               `json:"page"`
	HasMore bool              `json:"has_more"`
}

// FetchAll consumes vendor pages until exhausted and returns normalized
// records. A page that keeps failing after retries aborts the fetch.
func (c *Client) FetchAll(ctx context.Context) ([]ExternalLicenseRecord, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("%w: VENDOR_API_BASE_URL is not configured", ErrSourceUnavailable)
	}

	var records []ExternalLicenseRecord
	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Items {
			var payload vendorLicensePayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				log.Warnf("[VendorAPI] Skipping undecodable record on page %d: %v", page, err)
				continue
			}
			records = append(records, payload.toRecord(raw))
		}
		if !resp.HasMore {
			break
		}
	}
	log.Infof("[VendorAPI] Fetched %d license records", len(records))
	return records, nil
}

// fetchPage retrieves one page with bounded retries on transient failures.
func (c *Client) fetchPage(ctx context.Context, page int) (*vendorListResponse, error) {
	u, err := url.Parse(c.BaseURL + "/licenses")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", ErrSourceUnavailable, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.PageSize))
	u.RawQuery = q.Encode()

	var lastErr error
	retries := c.MaxRetries
	if retries <= 0 {
		retries = defaultVendorMaxRetries
	}
	delay := c.RetryDelay
	if delay <= 0 {
		delay = vendorRetryDelay
	}
	for attempt := 1; attempt <= retries; attempt++ {
		body, status, err := c.do(ctx, http.MethodGet, u.String(), nil)
		if err == nil && status >= 200 && status < 300 {
			var out vendorListResponse
			if uerr := json.Unmarshal(body, &out); uerr != nil {
				return nil, fmt.Errorf("%w: undecodable page %d: %v", ErrSourceUnavailable, page, uerr)
			}
			return &out, nil
		}
		if err == nil && status >= 400 && status < 500 {
			// Client errors do not heal with retries.
			return nil, fmt.Errorf("%w: page %d request rejected: status=%d body=%s", ErrSourceUnavailable, page, status, string(body))
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status=%d body=%s", status, string(body))
		}
		log.Warnf("[VendorAPI] Page %d fetch failed (try %d/%d): %v", page, attempt, retries, lastErr)
		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, ctx.Err())
			case <-time.After(delay * time.Duration(attempt)):
			}
		}
	}
	return nil, fmt.Errorf("%w: page %d failed after %d retries: %v", ErrSourceUnavailable, page, retries, lastErr)
}

// UpdateByAppID pushes dashboard-owned field values to the vendor record
// identified by app id (bidirectional mode only).
func (c *Client) UpdateByAppID(ctx context.Context, appID string, fields map[string]interface{}) error {
	if strings.TrimSpace(appID) == "" {
		return fmt.Errorf("app id is required")
	}
	return c.update(ctx, "/licenses/by-app-id/"+url.PathEscape(appID), fields)
}

// UpdateByEmail pushes dashboard-owned field values to the vendor record
// identified by email (bidirectional mode only).
func (c *Client) UpdateByEmail(ctx context.Context, email string, fields map[string]interface{}) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	return c.update(ctx, "/licenses/by-email/"+url.PathEscape(email), fields)
}

func (c *Client) update(ctx context.Context, path string, fields map[string]interface{}) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	body, status, err := c.do(ctx, http.MethodPut, c.BaseURL+path, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("vendor update failed: status=%d body=%s", status, string(body))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	return body, resp.StatusCode, nil
}

// toRecord normalizes a wire payload. Placeholder merchant/app identifiers
// collapse to empty so matching never keys on sentinels.
func (p vendorLicensePayload) toRecord(raw json.RawMessage) ExternalLicenseRecord {
	rec := ExternalLicenseRecord{
		CountID:      p.CountID,
		LicenseType:  LicenseType(strings.ToLower(strings.TrimSpace(p.LicenseType))),
		MerchantID:   NormalizeIdentifier(p.MerchantID),
		BusinessName: strings.TrimSpace(p.BusinessName),
		Zip:          strings.TrimSpace(p.Zip),
		MonthlyFee:   p.MonthlyFee,
		SMSBalance:   p.SMSBalance,
		Note:         strings.TrimSpace(p.Note),
		PackageFlags: p.PackageFlags,
		Active:       p.Status == 1,
		RawJSON:      string(raw),
	}
	if p.AppID != nil {
		rec.AppID = NormalizeIdentifier(*p.AppID)
	}
	if p.Email != nil {
		rec.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.WorkspaceID != nil {
		rec.WorkspaceID = strings.TrimSpace(*p.WorkspaceID)
	}
	rec.ActivateDate = parseVendorDate(p.ActivateDate)
	rec.ComingExpiredDate = parseVendorDate(p.ComingExpiredDate)
	rec.LastActive = parseVendorDate(p.LastActive)
	return rec
}

func parseVendorDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if t, err := time.Parse(vendorDateLayout, s); err == nil {
		return &t
	}
	return nil
}
