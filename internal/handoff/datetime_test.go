package handoff

import "testing"

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"5 kasım 2025", "2025-11-05", true},
		{"5 Kasım 2025", "2025-11-05", true},
		{"5 KASIM 2025", "2025-11-05", true},
		{"12 mayis 2024", "2024-05-12", true},
		{"1 Şubat 2026", "2026-02-01", true},
		{"15.01.2025", "2025-01-15", true},
		{"15/01/2025", "2025-01-15", true},
		{"15-01-2025", "2025-01-15", true},
		{"15 01 2025", "2025-01-15", true},
		{"  3.7.2025 ", "2025-07-03", true},
		{"2025-01-15", "2025-01-15", true},
		{"31.02.2025", "", false},
		{"2025-13-01", "", false},
		{"5 brumaire 2025", "", false},
		{"not-a-date", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDate(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("NormalizeDate(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"14.00", "14:00", true},
		{"14:00", "14:00", true},
		{"14 30", "14:30", true},
		{"9", "09:00", true},
		{"0930", "09:30", true},
		{"2 pm", "14:00", true},
		{"2:30PM", "14:30", true},
		{"12 am", "00:00", true},
		{"12 pm", "12:00", true},
		{"24:00", "", false},
		{"13 pm", "", false},
		{"öğlen", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeTime(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("NormalizeTime(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSplitDateTime(t *testing.T) {
	d, tm, ok := splitDateTime("15.01.2025 14.30")
	if !ok || d != "2025-01-15" || tm != "14:30" {
		t.Fatalf("got (%q, %q, %v)", d, tm, ok)
	}
	d, tm, ok = splitDateTime("2025-01-15T09:00")
	if !ok || d != "2025-01-15" || tm != "09:00" {
		t.Fatalf("got (%q, %q, %v)", d, tm, ok)
	}
	if _, _, ok := splitDateTime("yarın öğleden sonra"); ok {
		t.Fatal("expected no split for free text")
	}
}
