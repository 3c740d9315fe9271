package validator

import "testing"

type payload struct {
	ID    string `json:"id" validate:"required,crmid"`
	Email string `json:"email" validate:"required,email"`
}

func TestStructReportsFieldErrors(t *testing.T) {
	v := New()

	err := v.Struct(payload{ID: "bad id!", Email: "nope"})
	if err == nil {
		t.Fatalf("expected validation error")
	}

	fields := FieldErrors(err)
	if fields["ID"] != "crmid" {
		t.Fatalf("expected ID to fail crmid, got %q", fields["ID"])
	}
	if fields["Email"] != "email" {
		t.Fatalf("expected Email to fail email, got %q", fields["Email"])
	}
}

func TestStructAcceptsZohoIDs(t *testing.T) {
	v := New()
	if err := v.Struct(payload{ID: "5725767000000123001", Email: "a@x.com"}); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
}
