package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "portal_usap_backend/internal/http"
	leaddomain "portal_usap_backend/internal/leads/domain"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const testSecret = "s3cret"

func newTestRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	log := logger.New("development")
	m := &Module{handler: NewHandler(f.svc, validator.New(), log), secret: testSecret, log: log}
	m.RegisterRoutes(&apphttp.RouterContext{Engine: engine, Webhooks: engine.Group("/api/v1/webhooks")})
	return engine
}

func post(t *testing.T, engine *gin.Engine, path, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	engine := newTestRouter(t, newFixture(t))
	for _, secret := range []string{"", "wrong"} {
		rec := post(t, engine, "/api/v1/webhooks/zoho/partner", secret, map[string]string{"id": "V1"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("secret %q: status = %d, want 401", secret, rec.Code)
		}
	}
}

func TestWebhookDealWithoutPartnerIsBadRequest(t *testing.T) {
	engine := newTestRouter(t, newFixture(t))
	rec := post(t, engine, "/api/v1/webhooks/zoho/deal", testSecret, map[string]string{"zohoDealId": "D1", "Deal_Name": "X"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != false || body["error"] == "" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestWebhookLeadStatusUnknownLeadIsNotFound(t *testing.T) {
	engine := newTestRouter(t, newFixture(t))
	rec := post(t, engine, "/api/v1/webhooks/zoho/lead-status", testSecret, map[string]string{"id": "missing", "Lead_Status": "Contacted"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWebhookPartnerValidation(t *testing.T) {
	engine := newTestRouter(t, newFixture(t))
	rec := post(t, engine, "/api/v1/webhooks/zoho/partner", testSecret, map[string]string{"id": "V1", "VendorName": "V"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookDealCreatesThenUpdates(t *testing.T) {
	f := newFixture(t)
	partner := f.partners.add("V1")
	f.seedLead(t, partner.ID, "", nil, "a@x.com", leaddomain.StatusNew)
	engine := newTestRouter(t, f)

	body := map[string]any{
		"zohoDealId":   "D1",
		"Deal_Name":    "Acme Deal",
		"Stage":        "Approved",
		"Email":        "a@x.com",
		"Partners_Id":  "V1",
		"Account_Name": map[string]string{"id": "A1", "name": "Acme"},
	}
	rec := post(t, engine, "/api/v1/webhooks/zoho/deal", testSecret, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	body["Stage"] = "Declined"
	rec = post(t, engine, "/api/v1/webhooks/zoho/deal", testSecret, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	deals := f.deals.All()
	if len(deals) != 1 || deals[0].Company != "Acme" {
		t.Fatalf("deals = %+v", deals)
	}
}
