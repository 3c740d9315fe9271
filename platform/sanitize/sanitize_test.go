package sanitize

import "testing"

func TestText(t *testing.T) {
	if got := Text("  <b>Acme</b>\n  Corp &amp; Co "); got != "Acme Corp & Co" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestEmailAndNameKey(t *testing.T) {
	if got := Email("  A@X.com "); got != "a@x.com" {
		t.Fatalf("unexpected email %q", got)
	}
	if got := NameKey(" Jane   DOE "); got != "jane doe" {
		t.Fatalf("unexpected name key %q", got)
	}
}
