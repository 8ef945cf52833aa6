package branding

import (
	"context"
	"log/slog"
	"testing"

	"github.com/pulsesync/server/pkg/types"
)

func TestEnrich_DefaultFooter(t *testing.T) {
	p := New()
	res, err := p.Enrich(context.Background(), slog.Default(), &types.StandardizedActivity{}, &types.UserRecord{}, map[string]string{}, false)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Description != "Posted via PulseSync 💪" {
		t.Errorf("unexpected footer: %q", res.Description)
	}
	if res.SectionHeader != SectionHeader {
		t.Errorf("section header missing: %q", res.SectionHeader)
	}
}

func TestEnrich_CustomMessage(t *testing.T) {
	p := New()
	res, err := p.Enrich(context.Background(), slog.Default(), &types.StandardizedActivity{}, &types.UserRecord{}, map[string]string{"message": "My footer"}, false)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Description != "My footer" {
		t.Errorf("custom message not used: %q", res.Description)
	}
}
