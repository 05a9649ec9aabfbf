package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/dispatchlog"
	"github.com/dmefax/faxdesk/internal/platform/cache"
	"github.com/dmefax/faxdesk/internal/platform/notification"
	"github.com/dmefax/faxdesk/internal/platform/twilio"
)

// fakeTwilio serves the Messages, Lookup and Account endpoints. Numbers
// ending in 0000 look up as landlines.
type fakeTwilio struct {
	mu     sync.Mutex
	bodies []string
	calls  map[string]int
}

func newFakeTwilio(t *testing.T) (*fakeTwilio, *httptest.Server) {
	f := &fakeTwilio{calls: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls[r.URL.Path]++

		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/PhoneNumbers/"):
			kind := "mobile"
			if strings.HasSuffix(r.URL.Path, "0000") {
				kind = "landline"
			}
			fmt.Fprintf(w, `{"carrier":{"type":%q}}`, kind)
		case r.URL.Path == "/2010-04-01/Accounts/AC123/Messages.json":
			r.ParseForm()
			f.bodies = append(f.bodies, r.PostForm.Get("Body"))
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"sid":"SM%d","status":"queued"}`, len(f.bodies))
		case r.URL.Path == "/2010-04-01/Accounts/AC123.json":
			w.Write([]byte(`{"friendly_name":"Desk"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeTwilio) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

type staticClients struct {
	client Client
	err    error
}

func (s staticClients) Twilio(context.Context) (Client, error) {
	return s.client, s.err
}

type fakeRecorder struct {
	records []*dispatchlog.SMSRecord
}

func (r *fakeRecorder) RecordSMS(_ context.Context, m *dispatchlog.SMSRecord) error {
	r.records = append(r.records, m)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeTwilio, *fakeRecorder) {
	fake, srv := newFakeTwilio(t)
	client := twilio.NewClient(twilio.Config{
		BaseURL:    srv.URL,
		LookupURL:  srv.URL,
		AccountSID: "AC123",
		AuthToken:  "token",
		FromNumber: "+15550001111",
	}, zerolog.Nop(), twilio.WithCarrierCache(cache.NewMemory()))
	rec := &fakeRecorder{}
	return NewService(staticClients{client: client}, rec, zerolog.Nop()), fake, rec
}

func TestService_Send(t *testing.T) {
	svc, fake, rec := newTestService(t)

	res, err := svc.Send(context.Background(), "(555) 123-4567", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.To != "+15551234567" || res.SID != "SM1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if diff := cmp.Diff([]string{"hello"}, fake.sent()); diff != "" {
		t.Errorf("bodies mismatch (-want +got):\n%s", diff)
	}

	sid := "SM1"
	want := []*dispatchlog.SMSRecord{{
		SID:        &sid,
		ToNumber:   "+15551234567",
		FromNumber: "+15550001111",
		Message:    "hello",
		Status:     dispatchlog.StatusSent,
	}}
	if diff := cmp.Diff(want, rec.records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Send_Rejected(t *testing.T) {
	svc, fake, rec := newTestService(t)

	tests := []struct {
		name string
		to   string
		want error
	}{
		{"too short", "12345", twilio.ErrInvalidPhoneNumber},
		{"landline", "5551230000", twilio.ErrNotMobile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Send(context.Background(), tt.to, "hello")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Success || !errors.Is(res.Err, tt.want) {
				t.Errorf("expected %v, got %+v", tt.want, res)
			}
		})
	}
	if len(fake.sent()) != 0 {
		t.Errorf("expected no messages posted, got %d", len(fake.sent()))
	}
	for _, m := range rec.records {
		if m.Status != dispatchlog.StatusFailed || m.SID != nil || m.Error == "" {
			t.Errorf("expected failed record, got %+v", m)
		}
	}
}

func TestService_Send_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Send(context.Background(), "", "hello"); !errors.Is(err, ErrMissingRecipient) {
		t.Errorf("expected ErrMissingRecipient, got %v", err)
	}
	if _, err := svc.Send(context.Background(), "5551234567", " "); !errors.Is(err, ErrMissingMessage) {
		t.Errorf("expected ErrMissingMessage, got %v", err)
	}
}

func TestService_NotConfigured(t *testing.T) {
	svc := NewService(staticClients{err: twilio.ErrNotConfigured}, nil, zerolog.Nop())

	if _, err := svc.Send(context.Background(), "5551234567", "hello"); !errors.Is(err, twilio.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := svc.TestConnection(context.Background()); !errors.Is(err, twilio.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestService_SendMany(t *testing.T) {
	svc, fake, rec := newTestService(t)

	lines, err := svc.SendMany(context.Background(), "5551234567, 5551230000\n5559876543", "batch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !lines[0].Result.Success || lines[1].Result.Success || !lines[2].Result.Success {
		t.Errorf("unexpected outcomes: %+v %+v %+v", lines[0].Result, lines[1].Result, lines[2].Result)
	}
	if len(fake.sent()) != 2 {
		t.Errorf("expected 2 messages posted, got %d", len(fake.sent()))
	}
	if len(rec.records) != 3 {
		t.Errorf("expected every recipient logged, got %d", len(rec.records))
	}
}

func TestService_SendPrescription(t *testing.T) {
	svc, fake, rec := newTestService(t)

	res, err := svc.SendPrescription(context.Background(), Prescription{
		Name:       "Jane",
		PCPName:    "Smith",
		Phone:      "5551234567",
		DeviceName: "back_brace",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}

	want := "Hey! Jane! Your Signed Prescription Order has been Received from Doctor Smith for Back Brace. There is no Out-Of-Pocket Expense. Everything will be covered by Medicare."
	if got := fake.sent(); len(got) != 1 || got[0] != want {
		t.Errorf("unexpected body %q", got)
	}
	if len(rec.records) != 1 || rec.records[0].Message != want {
		t.Errorf("expected rendered body in log, got %+v", rec.records)
	}

	if _, err := svc.SendPrescription(context.Background(), Prescription{Phone: "5551234567"}); !errors.Is(err, ErrMissingName) {
		t.Errorf("expected ErrMissingName, got %v", err)
	}
}

func TestService_TestConnection(t *testing.T) {
	svc, _, _ := newTestService(t)

	res, err := svc.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.AccountName != "Desk" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestService_AsNotificationSender(t *testing.T) {
	svc, fake, rec := newTestService(t)
	mgr := notification.NewManager(svc, notification.NewTemplateEngine())

	n, err := mgr.SendFromTemplate(context.Background(), notification.PrescriptionReceived, map[string]string{
		"name": "Jane", "pcp_name": "Smith", "device_name": "CGM",
	}, "5551234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != notification.StatusSent || n.ProviderID != "SM1" {
		t.Errorf("unexpected notification: %+v", n)
	}
	if len(fake.sent()) != 1 || len(rec.records) != 1 {
		t.Errorf("expected one message sent and logged, got %d/%d", len(fake.sent()), len(rec.records))
	}

	failed, err := mgr.Send(context.Background(), "5551230000", "hello")
	if !errors.Is(err, twilio.ErrNotMobile) || failed.Status != notification.StatusFailed {
		t.Errorf("expected not-mobile failure, got %+v (%v)", failed, err)
	}
}

func TestLineText(t *testing.T) {
	ok := twilio.BatchLine{Number: "5551234567", Result: &twilio.SendResult{Success: true, SID: "SM9"}}
	bad := twilio.BatchLine{Number: "123", Result: &twilio.SendResult{Error: "invalid phone number format: 123"}}

	if got := lineText(ok); got != "✓ 5551234567: Success (SID: SM9)" {
		t.Errorf("unexpected line %q", got)
	}
	if got := lineText(bad); got != "✗ 123: Failed - invalid phone number format: 123" {
		t.Errorf("unexpected line %q", got)
	}
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
