package localization

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	tests := []struct {
		name     string
		lang     string
		key      string
		params   map[string]interface{}
		contains string
	}{
		{
			name:     "english subject with placeholder",
			lang:     "en",
			key:      "payment_link.email_subject",
			params:   map[string]interface{}{"reference": "NZ-2026-0007"},
			contains: "NZ-2026-0007",
		},
		{
			name:     "arabic subject",
			lang:     "ar",
			key:      "payment_link.email_subject",
			params:   map[string]interface{}{"reference": "NZ-2026-0007"},
			contains: "NZ-2026-0007",
		},
		{
			name:     "empty language falls back to english",
			lang:     "",
			key:      "receipt.whatsapp",
			params:   map[string]interface{}{"name": "Sara", "amount": "5000.00", "currency": "AED", "reference": "NZ-2026-0007", "tracking_id": "313004"},
			contains: "Sara",
		},
		{
			name:     "unknown language falls back to english",
			lang:     "fr",
			key:      "payment_link.whatsapp",
			params:   map[string]interface{}{"name": "Omar", "reference": "X", "link": "https://x", "amount": "1", "currency": "AED", "expires": "tomorrow"},
			contains: "Omar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Get(tt.lang, tt.key, tt.params)
			if got == tt.key {
				t.Fatalf("Get(%q, %q) returned the key itself, translation missing", tt.lang, tt.key)
			}
			if !strings.Contains(got, tt.contains) {
				t.Errorf("Get(%q, %q) = %q, want it to contain %q", tt.lang, tt.key, got, tt.contains)
			}
			if strings.Contains(got, "{{") {
				t.Errorf("Get(%q, %q) = %q, unreplaced placeholder left", tt.lang, tt.key, got)
			}
		})
	}
}

func TestGetUnknownKey(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if got := svc.Get("en", "no.such.key", nil); got != "no.such.key" {
		t.Errorf("Get(unknown key) = %q, want the key back", got)
	}
}
