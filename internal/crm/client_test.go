package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"portal_usap_backend/platform/apperr"
)

type staticTokens struct {
	token       string
	invalidated int32
}

func (s *staticTokens) AccessToken(context.Context) (string, error) { return s.token, nil }
func (s *staticTokens) Invalidate(context.Context)                  { atomic.AddInt32(&s.invalidated, 1) }

// setup returns a mux and a client pointed at a test server.
func setup(t *testing.T) (*http.ServeMux, *Client, *staticTokens) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	tokens := &staticTokens{token: "tok-1"}
	client := NewClient(tokens, Options{BaseURL: server.URL, HTTPClient: server.Client()})
	return mux, client, tokens
}

func TestSearchLeadsByPartnerPaginates(t *testing.T) {
	mux, client, _ := setup(t)

	var calls int32
	mux.HandleFunc("/Leads/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if got := r.Header.Get("Authorization"); got != "Zoho-oauthtoken tok-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("criteria"); got != "(StrategicPartnerId:equals:V1)" {
			t.Errorf("unexpected criteria %q", got)
		}
		page := r.URL.Query().Get("page")
		more := page == "1"
		fmt.Fprintf(w, `{"data":[{"id":"L%s","Email":"l%s@x.com","Lead_Status":"Contacted"}],"info":{"more_records":%t}}`, page, page, more)
	})

	leads, err := client.SearchLeadsByPartner(context.Background(), "V1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(leads) != 2 || leads[0].ID != "L1" || leads[1].ID != "L2" {
		t.Fatalf("unexpected leads: %+v", leads)
	}
	if calls != 2 {
		t.Fatalf("expected 2 page requests, got %d", calls)
	}
}

func TestSearchFailsWhenPageCapIsReached(t *testing.T) {
	mux, client, _ := setup(t)

	var calls int32
	mux.HandleFunc("/Deals/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, `{"data":[{"id":"D%s"}],"info":{"more_records":true}}`, r.URL.Query().Get("page"))
	})

	deals, err := client.SearchDealsByPartner(context.Background(), "V1")
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error for a truncated search, got %v", err)
	}
	if deals != nil {
		t.Fatalf("truncated search must not return records, got %d", len(deals))
	}
	if calls != maxSearchPages {
		t.Fatalf("page requests = %d, want %d", calls, maxSearchPages)
	}
}

func TestSearchDealsNoContentIsEmpty(t *testing.T) {
	mux, client, _ := setup(t)
	mux.HandleFunc("/Deals/search", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	deals, err := client.SearchDealsByPartner(context.Background(), "V1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(deals) != 0 {
		t.Fatalf("expected no deals, got %d", len(deals))
	}
}

func TestSearchDealsDecodesLookups(t *testing.T) {
	mux, client, _ := setup(t)
	mux.HandleFunc("/Deals/search", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"D1","Deal_Name":"Acme Deal","Stage":"Approved","Vendor":{"id":"V9","name":"Vend"},"Account_Name":"Acme LLC"}],"info":{"more_records":false}}`))
	})

	deals, err := client.SearchDealsByPartner(context.Background(), "V9")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("expected one deal, got %d", len(deals))
	}
	d := deals[0]
	if d.Vendor == nil || d.Vendor.ID != "V9" {
		t.Fatalf("expected vendor lookup V9, got %+v", d.Vendor)
	}
	if d.AccountName == nil || d.AccountName.Name != "Acme LLC" {
		t.Fatalf("expected flattened account name, got %+v", d.AccountName)
	}
}

func TestUnauthorizedRetriesOnceWithFreshToken(t *testing.T) {
	mux, client, tokens := setup(t)
	var calls int32
	mux.HandleFunc("/Leads/search", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[],"info":{"more_records":false}}`))
	})

	if _, err := client.SearchLeadsByPartner(context.Background(), "V1"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if tokens.invalidated != 1 {
		t.Fatalf("expected token invalidated once, got %d", tokens.invalidated)
	}
}

func TestServerErrorIsUpstream(t *testing.T) {
	mux, client, _ := setup(t)
	mux.HandleFunc("/Leads/search", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"INTERNAL_ERROR"}`, http.StatusInternalServerError)
	})

	_, err := client.SearchLeadsByPartner(context.Background(), "V1")
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestSearchRequiresPartner(t *testing.T) {
	_, client, _ := setup(t)
	if _, err := client.SearchLeadsByPartner(context.Background(), " "); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateLeadReturnsID(t *testing.T) {
	mux, client, _ := setup(t)
	mux.HandleFunc("/Leads", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body writeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.Data) != 1 || body.Data[0].Email != "a@x.com" {
			t.Errorf("unexpected body: %+v", body)
		}
		_, _ = w.Write([]byte(`{"data":[{"code":"SUCCESS","status":"success","details":{"id":"L77"}}]}`))
	})

	id, err := client.CreateLead(context.Background(), LeadInput{Email: "a@x.com", LastName: "Lee"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "L77" {
		t.Fatalf("expected L77, got %s", id)
	}
}

func TestUpdateLeadRejected(t *testing.T) {
	mux, client, _ := setup(t)
	mux.HandleFunc("/Leads/L1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"code":"INVALID_DATA","status":"error","message":"bad status"}]}`))
	})

	err := client.UpdateLead(context.Background(), "L1", LeadInput{LeadStatus: "Contacted"})
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestEscapeCriteria(t *testing.T) {
	if got := escapeCriteria("a(b),c"); got != `a\(b\)\,c` {
		t.Fatalf("unexpected escape: %s", got)
	}
}
