package registration

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"", StatusEmpty},
		{"   ", StatusEmpty},
		{"Generating...", StatusGenerating},
		{"Generating…", StatusGenerating},
		{"Generated", StatusGenerated},
		{"sent", StatusSent},
		{"Failed", StatusFailed},
		{"Failed (Email)", StatusFailed},
	}

	for _, tc := range tests {
		got, err := ParseStatus(tc.raw)
		if err != nil {
			t.Fatalf("ParseStatus(%q) error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseStatus(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseStatus_Unknown(t *testing.T) {
	_, err := ParseStatus("Issued")
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusEmpty, StatusGenerating, StatusGenerated, StatusSent, StatusFailed} {
		got, err := ParseStatus(s.String())
		if err != nil || got != s {
			t.Fatalf("round trip of %v gave %v, %v", s, got, err)
		}
	}
}

func TestRecordAdmission(t *testing.T) {
	r := Record{TicketStatus: StatusGenerated}
	if r.Unclaimed() {
		t.Fatalf("generated record must not be unclaimed")
	}
	if !r.NeedsEmail() {
		t.Fatalf("generated record without email status needs email")
	}

	r.EmailStatus = StatusSent
	if r.NeedsEmail() {
		t.Fatalf("sent record does not need email")
	}
}
