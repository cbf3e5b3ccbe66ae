package qrlink

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

const formTemplate = "https://docs.google.com/forms/d/e/FORM/formResponse?entry.1={name}&entry.2={status}&submit=Submit"

func TestBuildLink_RoundTrip(t *testing.T) {
	b, err := NewBuilder(formTemplate, "Present", "")
	if err != nil {
		t.Fatalf("NewBuilder error: %v", err)
	}

	names := []string{"Asha Rao", "José Núñez", "A&B=C?", "O'Brien #1", "100% attendee"}
	for _, name := range names {
		link, err := b.BuildLink(name, "")
		if err != nil {
			t.Fatalf("BuildLink(%q) error: %v", name, err)
		}

		u, err := url.Parse(link)
		if err != nil {
			t.Fatalf("link %q does not parse: %v", link, err)
		}
		q := u.Query()
		if got := q.Get("entry.1"); got != name {
			t.Fatalf("name round trip: got %q, want %q", got, name)
		}
		if got := q.Get("entry.2"); got != "Present" {
			t.Fatalf("status round trip: got %q", got)
		}
		if q.Get("submit") != "Submit" {
			t.Fatalf("literal query parameter lost in %q", link)
		}
	}
}

func TestBuildLink_PathPlaceholder(t *testing.T) {
	b, err := NewBuilder("https://checkin.example.com/{status}/{name}", "Present", "")
	if err != nil {
		t.Fatalf("NewBuilder error: %v", err)
	}

	link, _ := b.BuildLink("Asha Rao/2", "")
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	parts := strings.Split(u.EscapedPath(), "/")
	name, _ := url.PathUnescape(parts[len(parts)-1])
	if name != "Asha Rao/2" {
		t.Fatalf("expected escaped path segment to decode to name, got %q", name)
	}
}

func TestBuildLink_Deterministic(t *testing.T) {
	b, _ := NewBuilder(formTemplate+"&t={token}&id={id}", "Present", "secret")

	a, err := b.BuildLink("Asha Rao", "aid-1")
	if err != nil {
		t.Fatalf("BuildLink error: %v", err)
	}
	c, _ := b.BuildLink("Asha Rao", "aid-1")
	if a != c {
		t.Fatalf("links differ:\n%s\n%s", a, c)
	}
}

func TestBuildLink_SignedToken(t *testing.T) {
	b, _ := NewBuilder(formTemplate+"&t={token}", "Present", "secret")

	link, _ := b.BuildLink("Asha Rao", "aid-1")
	u, _ := url.Parse(link)

	claims, err := b.Verify(u.Query().Get("t"))
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.Name != "Asha Rao" || claims.Status != "Present" || claims.AttendeeID != "aid-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	other, _ := NewBuilder(formTemplate+"&t={token}", "Present", "other-secret")
	if _, err := other.Verify(u.Query().Get("t")); err == nil {
		t.Fatalf("expected verification with another secret to fail")
	}
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    string
		signing bool
		wantErr error
	}{
		{"ok", formTemplate, false, nil},
		{"missing name", "https://x.example/?s={status}", false, ErrMissingPlaceholder},
		{"missing status", "https://x.example/?n={name}", false, ErrMissingPlaceholder},
		{"token without secret", formTemplate + "&t={token}", false, ErrTokenWithoutSecret},
		{"relative", "/checkin?n={name}&s={status}", false, ErrInvalidTemplate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTemplate(tc.tmpl, tc.signing)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNeedsAttendeeID(t *testing.T) {
	withID, _ := NewBuilder(formTemplate+"&entry.3={id}", "Present", "")
	if !withID.NeedsAttendeeID() {
		t.Fatalf("template with {id} must need an attendee id")
	}
	plain, _ := NewBuilder(formTemplate, "Present", "")
	if plain.NeedsAttendeeID() {
		t.Fatalf("template without {id} must not need an attendee id")
	}
}
