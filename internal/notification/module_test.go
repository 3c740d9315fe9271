package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/notification/inapp"
	partnerrepo "portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"

	"github.com/google/uuid"
)

type testNotificationConfig struct{}

func (testNotificationConfig) GetAppBaseURL() string { return "https://portal.example.com/" }

type sentEmail struct {
	kind string
	to   string
	url  string
}

type testSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *testSender) record(kind, to, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{kind: kind, to: to, url: url})
	return s.err
}

func (s *testSender) SendPartnerWelcomeEmail(_ context.Context, to, _, loginURL, _ string) error {
	return s.record("welcome", to, loginURL)
}

func (s *testSender) SendLeadConvertedEmail(_ context.Context, to, _, _, dealURL string) error {
	return s.record("lead_converted", to, dealURL)
}

func (s *testSender) SendDealStageEmail(_ context.Context, to, _, _, dealURL string) error {
	return s.record("deal_stage", to, dealURL)
}

type memInbox struct {
	mu    sync.Mutex
	items []inapp.Notification
}

func (m *memInbox) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := inapp.Notification{
		ID:           uuid.New(),
		UserID:       p.UserID,
		Title:        p.Title,
		Content:      p.Content,
		ResourceID:   p.ResourceID,
		ResourceType: p.ResourceType,
		Category:     p.Category,
		Metadata:     p.Metadata,
	}
	m.items = append(m.items, n)
	return n, nil
}

func (m *memInbox) List(_ context.Context, userID uuid.UUID, _, _ int) ([]inapp.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []inapp.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *memInbox) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	items, _, _ := m.List(ctx, userID, 0, 0)
	return len(items), nil
}

func (m *memInbox) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (m *memInbox) MarkAllRead(context.Context, uuid.UUID) error         { return nil }

type testDirectory struct {
	admins   map[uuid.UUID]uuid.UUID
	contacts map[uuid.UUID]string
}

func (d testDirectory) AdminUserID(_ context.Context, partnerID uuid.UUID) (*uuid.UUID, error) {
	id, ok := d.admins[partnerID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (d testDirectory) GetUserContact(_ context.Context, userID uuid.UUID) (partnerrepo.UserContact, error) {
	mail, ok := d.contacts[userID]
	if !ok {
		return partnerrepo.UserContact{}, apperr.NotFound("user not found")
	}
	return partnerrepo.UserContact{ID: userID, Email: mail}, nil
}

func newTestModule(dir testDirectory) (*Module, *memInbox, *testSender) {
	inbox := &memInbox{}
	sender := &testSender{}
	m := newModule(inbox, sender, dir, dir, testNotificationConfig{}, logger.New("development"))
	return m, inbox, sender
}

func TestLeadConvertedNotifiesOwner(t *testing.T) {
	owner := uuid.New()
	dealID := uuid.New()
	m, inbox, sender := newTestModule(testDirectory{contacts: map[uuid.UUID]string{owner: "owner@acme.test"}})

	err := m.handleLeadConverted(context.Background(), events.LeadConverted{
		LeadID:    uuid.New(),
		DealID:    &dealID,
		PartnerID: uuid.New(),
		OwnerID:   &owner,
		LeadName:  "Ann Lee",
		DealName:  "Acme Deal",
		Source:    "webhook_deal",
	})
	if err != nil {
		t.Fatalf("handleLeadConverted: %v", err)
	}

	items, _, _ := inbox.List(context.Background(), owner, 0, 0)
	if len(items) != 1 {
		t.Fatalf("expected one in-app notification, got %d", len(items))
	}
	if items[0].ResourceID == nil || *items[0].ResourceID != dealID || *items[0].ResourceType != resourceTypeDeal {
		t.Fatalf("expected deal resource, got %+v", items[0])
	}
	if len(sender.sent) != 1 || sender.sent[0].to != "owner@acme.test" {
		t.Fatalf("unexpected emails %+v", sender.sent)
	}
	if want := "https://portal.example.com/deals/" + dealID.String(); sender.sent[0].url != want {
		t.Fatalf("expected deal url %s, got %s", want, sender.sent[0].url)
	}
}

func TestDealStageFallsBackToPartnerAdmin(t *testing.T) {
	partnerID, admin := uuid.New(), uuid.New()
	m, inbox, sender := newTestModule(testDirectory{
		admins:   map[uuid.UUID]uuid.UUID{partnerID: admin},
		contacts: map[uuid.UUID]string{admin: "admin@acme.test"},
	})

	err := m.handleDealStageChanged(context.Background(), events.DealStageChanged{
		DealID:    uuid.New(),
		PartnerID: partnerID,
		DealName:  "Acme Deal",
		OldStage:  "new_deal",
		NewStage:  "declined",
	})
	if err != nil {
		t.Fatalf("handleDealStageChanged: %v", err)
	}

	items, _, _ := inbox.List(context.Background(), admin, 0, 0)
	if len(items) != 1 || items[0].Category != inapp.CategoryWarning {
		t.Fatalf("expected one warning notification for the admin, got %+v", items)
	}
	if len(sender.sent) != 1 || sender.sent[0].kind != "deal_stage" {
		t.Fatalf("unexpected emails %+v", sender.sent)
	}
}

func TestNoRecipientIsNotAnError(t *testing.T) {
	m, inbox, sender := newTestModule(testDirectory{})

	err := m.handleDealStageChanged(context.Background(), events.DealStageChanged{
		DealID:    uuid.New(),
		PartnerID: uuid.New(),
		DealName:  "Orphan",
		NewStage:  "new_deal",
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if len(inbox.items) != 0 || len(sender.sent) != 0 {
		t.Fatal("expected nothing sent")
	}
}

func TestMissingContactSkipsEmailOnly(t *testing.T) {
	owner := uuid.New()
	m, inbox, sender := newTestModule(testDirectory{})

	err := m.handleLeadConverted(context.Background(), events.LeadConverted{
		LeadID:    uuid.New(),
		PartnerID: uuid.New(),
		OwnerID:   &owner,
		LeadName:  "Ann Lee",
		Source:    "webhook_lead",
	})
	if err != nil {
		t.Fatalf("handleLeadConverted: %v", err)
	}
	if len(inbox.items) != 1 || *inbox.items[0].ResourceType != resourceTypeLead {
		t.Fatalf("expected a lead-scoped notification, got %+v", inbox.items)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email, got %+v", sender.sent)
	}
}

func TestPartnerProvisionedSendsWelcome(t *testing.T) {
	m, inbox, sender := newTestModule(testDirectory{})
	admin := uuid.New()

	err := m.handlePartnerProvisioned(context.Background(), events.PartnerProvisioned{
		PartnerID:         uuid.New(),
		AdminUserID:       admin,
		Name:              "Acme",
		Email:             "ops@acme.test",
		TemporaryPassword: "temp",
	})
	if err != nil {
		t.Fatalf("handlePartnerProvisioned: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].url != "https://portal.example.com/login" {
		t.Fatalf("unexpected emails %+v", sender.sent)
	}
	if items, _, _ := inbox.List(context.Background(), admin, 0, 0); len(items) != 1 {
		t.Fatalf("expected welcome notification, got %d", len(items))
	}
}

func TestEmailFailureIsReturned(t *testing.T) {
	owner := uuid.New()
	m, _, sender := newTestModule(testDirectory{contacts: map[uuid.UUID]string{owner: "owner@acme.test"}})
	sender.err = errors.New("smtp down")

	err := m.handleDealStageChanged(context.Background(), events.DealStageChanged{
		DealID:    uuid.New(),
		PartnerID: uuid.New(),
		OwnerID:   &owner,
		DealName:  "Acme Deal",
		NewStage:  "approved",
	})
	if err == nil {
		t.Fatal("expected the email error to surface to the bus")
	}
}
