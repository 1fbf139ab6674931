package config

import (
	"strings"
	"testing"
	"time"
)

func TestBrandLabelsAndEmails(t *testing.T) {
	b := Brand{Key: "demo", SubjectPrefix: "[Demo Hukuk]", ContactEmail: "info@demo.com", HandoffEmailTo: "a@demo.com, b@demo.com"}
	if got := b.DisplayLabel(); got != "Demo Hukuk" {
		t.Fatalf("DisplayLabel = %q", got)
	}
	if got := b.Subject(); got != "[Demo Hukuk]" {
		t.Fatalf("Subject = %q", got)
	}
	if got := strings.Join(b.Emails(), ","); got != "info@demo.com,a@demo.com,b@demo.com" {
		t.Fatalf("Emails = %q", got)
	}

	bare := Brand{Key: "bare"}
	if bare.DisplayLabel() != "bare" || bare.Subject() != "[bare]" {
		t.Fatalf("fallback labels: %q %q", bare.DisplayLabel(), bare.Subject())
	}
}

func TestBuildRunInstructions(t *testing.T) {
	b := Brand{Key: "demo", Label: "Demo Hukuk", PracticeAreas: []string{"Aile", "Ceza"}}
	b.Office.City = "Ankara"
	now := time.Date(2025, 11, 5, 11, 30, 0, 0, time.UTC)

	got := BuildRunInstructions(b, now)
	for _, want := range []string{
		"CURRENT DATE/TIME: 5 Kasım 2025 Çarşamba 14:30 (Europe/Istanbul)",
		`"Demo Hukuk" (a law office in Ankara)`,
		"Office focus areas: Aile, Ceza.",
		"```handoff",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q", want)
		}
	}

	got = BuildRunInstructions(Brand{Key: "x"}, now)
	if !strings.Contains(got, "a law office in Türkiye") || !strings.Contains(got, defaultPracticeAreas) {
		t.Fatal("defaults not applied")
	}
}
