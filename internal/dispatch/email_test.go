package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/handoff"
)

func TestResolveRouting(t *testing.T) {
	tests := []struct {
		name     string
		brand    config.Brand
		cfg      config.EmailSettings
		customer string
		want     Routing
	}{
		{
			name:     "brand handoff address wins",
			brand:    config.Brand{Key: "demo", HandoffEmailTo: "a@demo.com, b@demo.com", ContactEmail: "info@demo.com", NoreplyEmail: "noreply@demo.com", BrandName: "Demo Hukuk"},
			cfg:      config.EmailSettings{To: "ops@intake.dev", ReplyTo: "reply@intake.dev"},
			customer: "ali@example.com",
			want:     Routing{To: []string{"a@demo.com", "b@demo.com"}, From: "noreply@demo.com", FromName: "Demo Hukuk", ReplyTo: "ali@example.com"},
		},
		{
			name:     "configured recipient and sender",
			brand:    config.Brand{Key: "demo", ContactEmail: "info@demo.com", NoreplyEmail: "noreply@demo.com"},
			cfg:      config.EmailSettings{To: "ops@intake.dev", From: "bot@intake.dev", FromName: "Intake", ReplyTo: "reply@intake.dev"},
			customer: "not-an-email",
			want:     Routing{To: []string{"ops@intake.dev"}, From: "bot@intake.dev", FromName: "Intake", ReplyTo: "reply@intake.dev"},
		},
		{
			name:  "brand contact as last resort",
			brand: config.Brand{Key: "demo", ContactEmail: "info@demo.com"},
			want:  Routing{To: []string{"info@demo.com"}, FromName: "demo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveRouting(tt.brand, tt.cfg, tt.customer)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("routing mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubject(t *testing.T) {
	s := sampleSubmission()
	assert.Equal(t, "[Demo Hukuk] Hukuk Talebi — Boşanma davası (Alan: Aile Hukuku | Aciliyet: Normal)", Subject(s.Brand, s.Record))

	s.Record.Request.Summary = ""
	s.Record.Matter = handoff.Matter{}
	s.Brand.SubjectPrefix = "[DH]"
	assert.Equal(t, "[DH] Hukuk Talebi", Subject(s.Brand, s.Record))
}

func TestBodies(t *testing.T) {
	s := sampleSubmission()
	s.Record.Request.Details = "<script>x</script> & ötesi"
	s.Record.Documents = []string{"dilekçe", "tapu"}
	rows := Rows(s)

	text := TextBody(rows)
	for _, want := range []string{
		"Ad Soyad: Ali Veli\n",
		"Telefon: +905551112233\n",
		"Hukuk Alanı: Aile Hukuku\n",
		"Görüşme Tercihi: Online Görüşme\n",
		"Görüşme Tarihi: 2025-01-15\n",
		"Görüşme Saati: 14:00\n",
		"Belgeler: dilekçe, tapu\n",
		"Handoff Türü: customer_request\n",
		"Kaynak Marka: Demo Hukuk\n",
		privacyNote,
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "E-posta", "empty rows are skipped")

	htmlBody := HTMLBody(rows)
	assert.Contains(t, htmlBody, "&lt;script&gt;x&lt;/script&gt; &amp; ötesi")
	assert.NotContains(t, htmlBody, "<script>")
	assert.Equal(t, len(rows), strings.Count(htmlBody, "<tr>"))
}

func TestEmailChannelSend(t *testing.T) {
	var got brevoEmail
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/smtp/email", r.URL.Path)
		assert.Equal(t, "xkeysib-test", r.Header.Get("api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"messageId":"<1@smtp-relay>"}`))
	}))
	defer server.Close()

	ch := NewEmailChannel(config.EmailSettings{
		APIKey:   "xkeysib-test",
		Endpoint: server.URL + "/v3/",
		From:     "bot@intake.dev",
		To:       "ops@intake.dev",
	}, server.Client())

	s := sampleSubmission()
	s.Record.Contact.Email = "ali@example.com"
	require.NoError(t, ch.Send(context.Background(), s))

	assert.Equal(t, brevoAddress{Email: "bot@intake.dev", Name: "Demo Hukuk"}, got.Sender)
	assert.Equal(t, []brevoAddress{{Email: "ops@intake.dev"}}, got.To)
	require.NotNil(t, got.ReplyTo)
	assert.Equal(t, "ali@example.com", got.ReplyTo.Email)
	assert.Equal(t, "ali@example.com", got.Headers["Reply-To"])
	assert.True(t, strings.HasPrefix(got.Subject, "[Demo Hukuk] Hukuk Talebi — Boşanma davası"))
	assert.Contains(t, got.TextContent, "E-posta: ali@example.com")
}

func TestEmailChannelErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"unauthorized","message":"Key not found"}`))
	}))
	defer server.Close()

	s := sampleSubmission()

	ch := NewEmailChannel(config.EmailSettings{APIKey: "k", Endpoint: server.URL, From: "bot@intake.dev", To: "ops@intake.dev"}, server.Client())
	err := ch.Send(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	noRecipient := NewEmailChannel(config.EmailSettings{APIKey: "k", Endpoint: server.URL, From: "bot@intake.dev"}, server.Client())
	assert.ErrorContains(t, noRecipient.Send(context.Background(), s), "no recipient")

	noSender := NewEmailChannel(config.EmailSettings{APIKey: "k", Endpoint: server.URL, To: "ops@intake.dev"}, server.Client())
	assert.ErrorContains(t, noSender.Send(context.Background(), s), "no verified sender")
}
