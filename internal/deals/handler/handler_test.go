package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"portal_usap_backend/internal/deals/domain"
	"portal_usap_backend/internal/deals/repository"
	"portal_usap_backend/internal/deals/service"
	"portal_usap_backend/internal/deals/transport"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/httpkit"
	"portal_usap_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubReader struct {
	deals      map[uuid.UUID]domain.Deal
	lastParams repository.ListParams
}

func (s *stubReader) GetByID(_ context.Context, id uuid.UUID) (domain.Deal, error) {
	d, ok := s.deals[id]
	if !ok {
		return domain.Deal{}, apperr.NotFound("deal not found")
	}
	return d, nil
}

func (s *stubReader) ListByPartner(_ context.Context, params repository.ListParams) ([]domain.Deal, int, error) {
	s.lastParams = params
	var out []domain.Deal
	for _, d := range s.deals {
		if d.PartnerID == params.PartnerID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

var (
	partnerA = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	partnerB = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	dealA    = uuid.MustParse("aaaaaaaa-1111-0000-0000-000000000001")
	dealB    = uuid.MustParse("bbbbbbbb-1111-0000-0000-000000000002")
)

func newEngine(reader *stubReader, partnerID *uuid.UUID, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		c.Set(httpkit.ContextRolesKey, roles)
		if partnerID != nil {
			c.Set(httpkit.ContextPartnerIDKey, *partnerID)
		}
		c.Next()
	})
	New(service.New(reader), validator.New()).RegisterRoutes(engine.Group("/deals"))
	return engine
}

func fixtureReader() *stubReader {
	return &stubReader{deals: map[uuid.UUID]domain.Deal{
		dealA: {ID: dealA, ExternalID: "D1", PartnerID: partnerA, Name: "Acme Deal", Stage: domain.StageApproved},
		dealB: {ID: dealB, ExternalID: "D2", PartnerID: partnerB, Name: "Other Deal", Stage: domain.StageNewDeal},
	}}
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListIsScopedToCallerPartner(t *testing.T) {
	reader := fixtureReader()
	pid := partnerA
	// A partner user cannot widen the scope through the query string.
	rec := get(newEngine(reader, &pid), "/deals?partnerId="+partnerB.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got transport.DealListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 1 || got.Items[0].ExternalID != "D1" {
		t.Fatalf("items = %+v", got.Items)
	}
	if reader.lastParams.Page != 1 || reader.lastParams.PageSize != defaultPageSize {
		t.Fatalf("paging defaults not applied: %+v", reader.lastParams)
	}
}

func TestListAdminPicksPartner(t *testing.T) {
	reader := fixtureReader()
	rec := get(newEngine(reader, nil, httpkit.RoleAdmin), "/deals?partnerId="+partnerB.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if reader.lastParams.PartnerID != partnerB {
		t.Fatalf("partner = %s", reader.lastParams.PartnerID)
	}
}

func TestListRejectsUnknownStage(t *testing.T) {
	pid := partnerA
	if rec := get(newEngine(fixtureReader(), &pid), "/deals?stage=won"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListWithoutPartnerIsForbidden(t *testing.T) {
	if rec := get(newEngine(fixtureReader(), nil), "/deals"); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetHidesOtherPartnersDeals(t *testing.T) {
	pid := partnerA
	engine := newEngine(fixtureReader(), &pid)

	if rec := get(engine, "/deals/"+dealA.String()); rec.Code != http.StatusOK {
		t.Fatalf("own deal status = %d", rec.Code)
	}
	if rec := get(engine, "/deals/"+dealB.String()); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign deal status = %d", rec.Code)
	}
}
