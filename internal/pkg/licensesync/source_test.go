package licensesync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		PageSize:   2,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestFetchAllPaginatesAndNormalizes(t *testing.T) {
	pages := map[string]string{
		"1": `{"items":[
			{"count_id":1,"app_id":"APP-100","license_type":"Product","email":"One@Example.COM","business_name":" Mel's Diner ","zip":"10001","activate_date":"2024-06-01","monthly_fee":49.9,"sms_balance":120,"status":1},
			{"count_id":2,"app_id":"DEMO","license_type":"demo","merchant_id":"N/A","email":null,"status":0}
		],"page":1,"has_more":true}`,
		"2": `{"items":[
			{"count_id":3,"app_id":null,"email":"three@example.com","workspace_id":"ws-3","last_active":"2025-02-01T10:30:00Z","status":1}
		],"page":2,"has_more":false}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		body, ok := pages[r.URL.Query().Get("page")]
		if !ok {
			t.Errorf("unexpected page request: %s", r.URL.String())
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	records, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("FetchAll() returned %d records, want 3", len(records))
	}

	if records[0].AppID != "APP-100" {
		t.Errorf("record 0 app id = %q", records[0].AppID)
	}
	if records[0].Email != "one@example.com" {
		t.Errorf("record 0 email not lowercased: %q", records[0].Email)
	}
	if records[0].BusinessName != "Mel's Diner" {
		t.Errorf("record 0 business name not trimmed: %q", records[0].BusinessName)
	}
	if records[0].LicenseType != LicenseTypeProduct {
		t.Errorf("record 0 license type = %q", records[0].LicenseType)
	}
	if records[0].ActivateDate == nil || records[0].ActivateDate.Format("2006-01-02") != "2024-06-01" {
		t.Errorf("record 0 activate date = %v", records[0].ActivateDate)
	}
	if !records[0].Active {
		t.Error("record 0 should be active")
	}

	if records[1].AppID != "" {
		t.Errorf("DEMO app id not collapsed: %q", records[1].AppID)
	}
	if records[1].MerchantID != "" {
		t.Errorf("N/A merchant id not collapsed: %q", records[1].MerchantID)
	}
	if records[1].Active {
		t.Error("status 0 should not be active")
	}

	if records[2].WorkspaceID != "ws-3" {
		t.Errorf("record 2 workspace id = %q", records[2].WorkspaceID)
	}
	if records[2].LastActive == nil {
		t.Error("record 2 last active not parsed")
	}
	if records[2].RawJSON == "" {
		t.Error("record 2 raw payload not kept")
	}
}

func TestFetchAllRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"items":[{"count_id":1,"status":1}],"page":1,"has_more":false}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	records, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("FetchAll() returned %d records, want 1", len(records))
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestFetchAllExhaustedRetriesAbort(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchAll(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("FetchAll() error = %v, want ErrSourceUnavailable", err)
	}
	if calls.Load() != int32(c.MaxRetries) {
		t.Errorf("server saw %d calls, want %d", calls.Load(), c.MaxRetries)
	}
}

func TestFetchAllClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchAll(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("FetchAll() error = %v, want ErrSourceUnavailable", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1 (4xx must not retry)", calls.Load())
	}
}

func TestFetchAllUnconfiguredBaseURL(t *testing.T) {
	c := &Client{HTTPClient: http.DefaultClient}
	_, err := c.FetchAll(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("FetchAll() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestUpdateByAppID(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.UpdateByAppID(context.Background(), "app-7", map[string]interface{}{"business_name": "New Name"})
	if err != nil {
		t.Fatalf("UpdateByAppID() error = %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/licenses/by-app-id/app-7" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["business_name"] != "New Name" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestUpdateByEmailRejectsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"record locked"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.UpdateByEmail(context.Background(), "one@example.com", map[string]interface{}{"zip": "10001"})
	if err == nil {
		t.Fatal("UpdateByEmail() expected error on status " + strconv.Itoa(http.StatusConflict))
	}
}

func TestUpdateRequiresIdentifier(t *testing.T) {
	c := newTestClient("http://localhost:0")
	if err := c.UpdateByAppID(context.Background(), "  ", nil); err == nil {
		t.Error("UpdateByAppID() accepted blank app id")
	}
	if err := c.UpdateByEmail(context.Background(), "", nil); err == nil {
		t.Error("UpdateByEmail() accepted blank email")
	}
}
