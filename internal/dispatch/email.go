package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/handoff"
)

const privacyNote = "Not: Hassas veriler (TCKN/IBAN/kart/sağlık vb.) bu kanaldan istenmez/paylaşılmamalıdır."

var validEmailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Routing is the resolved sender and recipients for one brand.
type Routing struct {
	To       []string
	From     string
	FromName string
	ReplyTo  string
}

// ResolveRouting picks recipients and sender for a brand.
//
// to: brand handoff address, configured recipient, brand email_to, brand contact.
// from: configured sender, brand noreply. Reply-to is the customer email
// when valid, else the configured reply-to.
func ResolveRouting(b config.Brand, cfg config.EmailSettings, customerEmail string) Routing {
	to := firstNonEmpty(b.HandoffEmailTo, cfg.To, b.EmailTo, b.ContactEmail)
	r := Routing{
		From:     firstNonEmpty(cfg.From, b.NoreplyEmail),
		FromName: firstNonEmpty(cfg.FromName, b.BrandName, b.DisplayLabel()),
	}
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			r.To = append(r.To, addr)
		}
	}
	for _, candidate := range []string{customerEmail, cfg.ReplyTo} {
		if c := strings.TrimSpace(candidate); validEmailRe.MatchString(c) {
			r.ReplyTo = c
			break
		}
	}
	return r
}

// Subject builds "<prefix> Hukuk Talebi — <summary> (Alan: X | Aciliyet: Y)".
func Subject(b config.Brand, r handoff.Record) string {
	intent := handoff.DefaultTitle
	if s := strings.TrimSpace(r.Request.Summary); s != "" {
		intent += " — " + s
	}
	var tail []string
	if r.Matter.Category != "" {
		tail = append(tail, "Alan: "+r.Matter.Category.Label())
	}
	if r.Matter.Urgency != "" {
		tail = append(tail, "Aciliyet: "+r.Matter.Urgency.Label())
	}
	subject := b.Subject() + " " + intent
	if len(tail) > 0 {
		subject += " (" + strings.Join(tail, " | ") + ")"
	}
	return subject
}

// Row is one key/value line of the email body.
type Row struct{ Key, Value string }

// Rows is the key/value table shown in the email body.
func Rows(s Submission) []Row {
	r := s.Record
	var rows []Row
	add := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			rows = append(rows, Row{k, v})
		}
	}
	add("Ad Soyad", r.Contact.Name)
	add("Telefon", r.Contact.Phone)
	add("E-posta", r.Contact.Email)
	if r.Matter.Category != "" {
		add("Hukuk Alanı", r.Matter.Category.Label())
	}
	if r.Matter.Urgency != "" {
		add("Aciliyet", r.Matter.Urgency.Label())
	}
	add("Olay Tarihi / Aralık", r.Dates.Event)
	add("Kritik Tarih / Son Gün", r.Dates.Deadline)
	add("Görüşme Tercihi", r.Meeting.Mode)
	add("Görüşme Tarihi", r.Meeting.Date)
	add("Görüşme Saati", r.Meeting.Time)
	add("Konu (Özet)", r.Request.Summary)
	add("Açıklama (Detay)", r.Request.Details)
	add("Belgeler", strings.Join(r.Documents, ", "))
	add("Handoff Türü", firstNonEmpty(s.Kind, r.Kind, handoff.KindCustomerRequest))
	add("Kaynak Marka", s.Brand.DisplayLabel())
	return rows
}

// TextBody renders the plain-text email body.
func TextBody(rows []Row) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s: %s\n", r.Key, r.Value)
	}
	b.WriteString("\n")
	b.WriteString(privacyNote)
	return b.String()
}

// HTMLBody renders the two-column HTML table.
func HTMLBody(rows []Row) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:system-ui, -apple-system, 'Segoe UI', Roboto, Arial; line-height:1.5; color:#111;">`)
	b.WriteString(`<table style="border-collapse:collapse;border:1px solid #eee;min-width:420px;">`)
	for _, r := range rows {
		fmt.Fprintf(&b,
			`<tr><td style="padding:6px 10px;border:1px solid #eee;font-weight:600;white-space:nowrap;">%s</td>`+
				`<td style="padding:6px 10px;border:1px solid #eee;">%s</td></tr>`,
			html.EscapeString(r.Key), html.EscapeString(r.Value))
	}
	b.WriteString(`</table>`)
	fmt.Fprintf(&b, `<p style="margin:10px 0 0 0; color:#777;font-size:12px;">%s</p></div>`, html.EscapeString(privacyNote))
	return b.String()
}

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmail struct {
	Sender      brevoAddress      `json:"sender"`
	To          []brevoAddress    `json:"to"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"htmlContent"`
	TextContent string            `json:"textContent"`
	ReplyTo     *brevoAddress     `json:"replyTo,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// EmailChannel sends handoff emails through the Brevo transactional API.
type EmailChannel struct {
	cfg    config.EmailSettings
	client *http.Client
}

// NewEmailChannel creates the channel. A nil client uses http.DefaultClient;
// the dispatcher's context bounds each call.
func NewEmailChannel(cfg config.EmailSettings, client *http.Client) *EmailChannel {
	if client == nil {
		client = http.DefaultClient
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &EmailChannel{cfg: cfg, client: client}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, s Submission) error {
	routing := ResolveRouting(s.Brand, e.cfg, s.Record.Contact.Email)
	if len(routing.To) == 0 {
		return errors.New("no recipient for handoff email")
	}
	if routing.From == "" {
		return errors.New("no verified sender configured")
	}

	rows := Rows(s)
	msg := brevoEmail{
		Sender:      brevoAddress{Email: routing.From, Name: routing.FromName},
		Subject:     Subject(s.Brand, s.Record),
		HTMLContent: HTMLBody(rows),
		TextContent: TextBody(rows),
	}
	for _, to := range routing.To {
		msg.To = append(msg.To, brevoAddress{Email: to})
	}
	if routing.ReplyTo != "" {
		msg.ReplyTo = &brevoAddress{Email: routing.ReplyTo}
		msg.Headers = map[string]string{"Reply-To": routing.ReplyTo}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint+"/smtp/email", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
