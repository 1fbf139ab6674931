package fence

import (
	"math/rand"
	"strings"
	"testing"
)

var streamInputs = []string{
	"Merhaba, talebinizi aldım.",
	"Önce metin ```json\n{\"handoff\":\"customer_request\",\"payload\":{\"name\":\"Ali\"}}\n``` sonra metin",
	"```handoff\n{\"kind\":\"customer_request\"}\n```",
	"iki blok ```a``` arada ```b``` son",
	"tek `tik` ve ``çift`` işaret",
	"dört ```` backtick ```` son",
	"kapanmamış ```json\n{\"handoff\": \"x\"",
	"çıplak {\"handoff\": \"customer_request\"} sonrası görünmez",
	"tırnak \"hand\" ama işaret değil \"handoff\" da değil",
	"boşluklu \"HANDOFF\"   \t: büyük harf",
	"son iki ``",
}

func stream(fragments []string) string {
	f := NewFilter()
	var b strings.Builder
	for _, frag := range fragments {
		b.WriteString(f.Push(frag))
	}
	b.WriteString(f.Flush())
	return b.String()
}

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Merhaba", "Merhaba"},
		{"fenced block removed", "Önce ```json\n{\"a\":1}\n``` sonra", "Önce  sonra"},
		{"two blocks", "a```x```b```y```c", "abc"},
		{"unterminated tail dropped", "görünür ```json\n{\"a\":", "görünür "},
		{"single and double backticks kept", "a `b` ``c``", "a `b` ``c``"},
		{"trailing backticks kept", "son ``", "son ``"},
		{"bare marker truncates", `Tamam {"handoff": "customer_request"} devam`, "Tamam {"},
		{"marker case-insensitive", `x "HandOff" : 1`, "x "},
		{"quoted word not a marker", `"handoff" kelimesi`, `"handoff" kelimesi`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.in); got != tt.want {
				t.Fatalf("Strip(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitInvariance(t *testing.T) {
	for _, in := range streamInputs {
		want := Strip(in)
		for i := 0; i <= len(in); i++ {
			for j := i; j <= len(in); j++ {
				got := stream([]string{in[:i], in[i:j], in[j:]})
				if got != want {
					t.Fatalf("split (%d,%d) of %q:\n got %q\nwant %q", i, j, in, got, want)
				}
			}
		}
	}
}

func TestSplitInvarianceRandomFragments(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, in := range streamInputs {
		want := Strip(in)
		for round := 0; round < 200; round++ {
			var frags []string
			rest := in
			for len(rest) > 0 {
				n := 1 + rng.Intn(4)
				if n > len(rest) {
					n = len(rest)
				}
				frags = append(frags, rest[:n])
				rest = rest[n:]
			}
			if got := stream(frags); got != want {
				t.Fatalf("fragments %q:\n got %q\nwant %q", frags, got, want)
			}
		}
	}
}

func TestNoDelimiterLeakage(t *testing.T) {
	in := "a ```handoff\n{\"handoff\":\"customer_request\"}\n``` b"
	f := NewFilter()
	for i := 0; i < len(in); i++ {
		out := f.Push(in[i : i+1])
		if strings.Contains(out, "`") {
			t.Fatalf("fragment %d leaked backtick: %q", i, out)
		}
	}
	if out := f.Flush(); out != "" {
		t.Fatalf("flush leaked %q", out)
	}
}

func TestStepCarriesPartialDelimiter(t *testing.T) {
	s, out := Step(State{}, "metin ``")
	if out != "metin " {
		t.Fatalf("emitted %q", out)
	}
	if s.Carry != "``" || s.Mode != Outside {
		t.Fatalf("state = %+v", s)
	}

	s, out = Step(s, "`json {}")
	if out != "" || s.Mode != Inside {
		t.Fatalf("after open: out=%q state=%+v", out, s)
	}

	s, out = Step(s, "``")
	if out != "" || s.Carry != "``" || s.Mode != Inside {
		t.Fatalf("inside carry: out=%q state=%+v", out, s)
	}
	if Flush(s) != "" {
		t.Fatal("flush inside a fence must drop the carry")
	}

	s, out = Step(s, "` bitti")
	if out != " bitti" || s.Mode != Outside {
		t.Fatalf("after close: out=%q state=%+v", out, s)
	}
}

func TestFilterTripsOnSplitMarker(t *testing.T) {
	f := NewFilter()
	got := f.Push(`Bilgiler: {"hand`)
	if strings.Contains(got, `"hand`) {
		t.Fatalf("partial marker released early: %q", got)
	}
	got += f.Push(`off": "customer_request"}`)
	got += f.Push(" gizli kalmalı")
	got += f.Flush()
	if got != "Bilgiler: {" {
		t.Fatalf("got %q", got)
	}
	if !f.Tripped() {
		t.Fatal("expected filter to be tripped")
	}
}

func TestFilterReleasesFalseMarkerPrefix(t *testing.T) {
	f := NewFilter()
	got := f.Push(`"han`)
	got += f.Push(`dle" ile`)
	got += f.Flush()
	if got != `"handle" ile` {
		t.Fatalf("got %q", got)
	}
	if f.Tripped() {
		t.Fatal("filter should not trip")
	}
}

func TestHasMarker(t *testing.T) {
	if !HasMarker("```handoff\n{}\n```") {
		t.Fatal("tagged fence not detected")
	}
	if !HasMarker(`{"handoff" : "x"}`) {
		t.Fatal("key marker not detected")
	}
	if HasMarker("handoff kelimesi") {
		t.Fatal("plain word detected as marker")
	}
}
