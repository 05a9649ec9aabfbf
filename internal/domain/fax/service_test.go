package fax

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/dispatchlog"
	"github.com/dmefax/faxdesk/internal/platform/humblefax"
	"github.com/dmefax/faxdesk/internal/platform/telnyx"
	"github.com/dmefax/faxdesk/pkg/pagination"
)

type fakeProvider struct {
	history    []humblefax.Fax
	lastQuery  humblefax.HistoryQuery
	details    map[string]*humblefax.Fax
	sent       []humblefax.SendRequest
	sendFail   bool
	cancelled  []string
	cancelErr  error
	resendID   string
	connection *humblefax.ConnectionResult
}

func (p *fakeProvider) Send(_ context.Context, req humblefax.SendRequest) *humblefax.SendResult {
	p.sent = append(p.sent, req)
	if p.sendFail {
		return &humblefax.SendResult{Phase: humblefax.PhaseUpload, Message: "Failed to send fax", Error: "upload rejected"}
	}
	return &humblefax.SendResult{Success: true, FaxID: fmt.Sprintf("fx-%d", len(p.sent)), Message: "Fax sent successfully"}
}

func (p *fakeProvider) History(_ context.Context, q humblefax.HistoryQuery) ([]humblefax.Fax, error) {
	p.lastQuery = q
	out := p.history
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (p *fakeProvider) Detail(_ context.Context, id string) (*humblefax.Fax, error) {
	if f, ok := p.details[id]; ok {
		return f, nil
	}
	return nil, humblefax.ErrNotFound
}

func (p *fakeProvider) Resend(_ context.Context, id string) *humblefax.ResendResult {
	if _, ok := p.details[id]; !ok {
		return &humblefax.ResendResult{OriginalID: id, Error: "fax not found", Err: humblefax.ErrNotFound}
	}
	return &humblefax.ResendResult{Success: true, OriginalID: id, NewFaxID: p.resendID, Message: "Fax resent successfully"}
}

func (p *fakeProvider) Cancel(_ context.Context, id string) error {
	if p.cancelErr != nil {
		return p.cancelErr
	}
	p.cancelled = append(p.cancelled, id)
	return nil
}

func (p *fakeProvider) Status(_ context.Context, id string) (map[string]any, error) {
	if f, ok := p.details[id]; ok {
		return map[string]any{"id": f.ID, "status": f.Status}, nil
	}
	return nil, fmt.Errorf("status: %w", humblefax.ErrNotFound)
}

func (p *fakeProvider) Account(context.Context) (map[string]any, error) {
	return map[string]any{"name": "Desk"}, nil
}

func (p *fakeProvider) TestConnection(context.Context) *humblefax.ConnectionResult {
	return p.connection
}

type fakeMedia struct {
	calls []string
}

func (m *fakeMedia) SendFax(_ context.Context, to, mediaURL string) (*telnyx.Fax, error) {
	m.calls = append(m.calls, to)
	if to == "bad" {
		return nil, fmt.Errorf("%w: 422", telnyx.ErrUnexpectedStatus)
	}
	return &telnyx.Fax{ID: "tx-" + to, To: to, From: "+15550000000", MediaURL: mediaURL}, nil
}

func (m *fakeMedia) SendMany(ctx context.Context, numbers, mediaURL string) []telnyx.BatchLine {
	var out []telnyx.BatchLine
	for _, n := range []string{"111", "bad", "222"} {
		f, err := m.SendFax(ctx, n, mediaURL)
		if err != nil {
			out = append(out, telnyx.BatchLine{Number: n, Error: err.Error()})
			continue
		}
		out = append(out, telnyx.BatchLine{Number: n, Success: true, FaxID: f.ID})
	}
	return out
}

func (m *fakeMedia) RegisterMedia(_ context.Context, mediaURL, name string) (string, error) {
	m.calls = append(m.calls, "register:"+mediaURL)
	if name == "" {
		name = "media-1"
	}
	return name, nil
}

type fakeClients struct {
	provider *fakeProvider
	media    *fakeMedia
	err      error
}

func (c *fakeClients) HumbleFax(context.Context) (Provider, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.provider, nil
}

func (c *fakeClients) Telnyx(context.Context) (MediaSender, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.media, nil
}

type fakeRecorder struct {
	records []*dispatchlog.FaxRecord
}

func (r *fakeRecorder) RecordFax(_ context.Context, f *dispatchlog.FaxRecord) error {
	f.ID = uuid.New()
	r.records = append(r.records, f)
	return nil
}

func (r *fakeRecorder) GetFaxByProviderID(_ context.Context, faxID string) (*dispatchlog.FaxRecord, error) {
	for _, f := range r.records {
		if f.ProviderID() == faxID {
			return f, nil
		}
	}
	return nil, dispatchlog.ErrNotFound
}

func (r *fakeRecorder) UpdateFaxStatus(ctx context.Context, faxID, status, errMsg string) (*dispatchlog.FaxRecord, error) {
	f, err := r.GetFaxByProviderID(ctx, faxID)
	if err != nil {
		return nil, err
	}
	f.Status = status
	f.Error = errMsg
	return f, nil
}

func newTestService() (*Service, *fakeClients, *fakeRecorder) {
	clients := &fakeClients{
		provider: &fakeProvider{
			details: map[string]*humblefax.Fax{
				"100": {ID: "100", To: "5551234567", Status: "sent", Direction: humblefax.Outbound},
			},
			resendID:   "200",
			connection: &humblefax.ConnectionResult{Success: true, Endpoints: []string{"/sentFaxes"}},
		},
		media: &fakeMedia{},
	}
	rec := &fakeRecorder{}
	return NewService(clients, rec, zerolog.Nop()), clients, rec
}

func strPtr(s string) *string { return &s }

func TestService_History_Paging(t *testing.T) {
	svc, clients, _ := newTestService()
	for i := 0; i < 7; i++ {
		clients.provider.history = append(clients.provider.history, humblefax.Fax{ID: fmt.Sprint(i)})
	}

	items, total, err := svc.History(context.Background(), "Outbound", pagination.Params{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := clients.provider.lastQuery; got.Limit != 5 || got.Direction != humblefax.Outbound {
		t.Errorf("unexpected query: %+v", got)
	}
	if len(items) != 2 || items[0].ID != "2" || items[1].ID != "3" {
		t.Errorf("unexpected page: %+v", items)
	}
	if !(pagination.Params{Limit: 2, Offset: 2}).HasNext(total) {
		t.Errorf("expected another page, total=%d", total)
	}
}

func TestService_History_LastPage(t *testing.T) {
	svc, clients, _ := newTestService()
	clients.provider.history = []humblefax.Fax{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	p := pagination.Params{Limit: 2, Offset: 2}
	items, total, err := svc.History(context.Background(), "", p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || p.HasNext(total) {
		t.Errorf("expected final single-item page, got %d items total=%d", len(items), total)
	}
}

func TestService_History_InvalidDirection(t *testing.T) {
	svc, _, _ := newTestService()
	_, _, err := svc.History(context.Background(), "sideways", pagination.Params{Limit: 10})
	if !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestService_NotConfigured(t *testing.T) {
	svc, clients, _ := newTestService()
	clients.err = humblefax.ErrNotConfigured

	if _, err := svc.Detail(context.Background(), "100"); !errors.Is(err, humblefax.ErrNotConfigured) {
		t.Errorf("Detail: expected ErrNotConfigured, got %v", err)
	}
	if err := svc.Cancel(context.Background(), "100"); !errors.Is(err, humblefax.ErrNotConfigured) {
		t.Errorf("Cancel: expected ErrNotConfigured, got %v", err)
	}
}

func TestService_Detail(t *testing.T) {
	svc, _, _ := newTestService()

	f, err := svc.Detail(context.Background(), "100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.To != "5551234567" {
		t.Errorf("unexpected fax: %+v", f)
	}

	if _, err := svc.Detail(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Status(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from Status, got %v", err)
	}
}

func TestService_Send_Records(t *testing.T) {
	svc, clients, rec := newTestService()

	res, err := svc.Send(context.Background(), SendInput{
		To:          "5551234567",
		Filename:    "order.docx",
		Data:        []byte("docx"),
		PatientName: "Jane Doe",
		DeviceType:  "Cgm",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := clients.provider.sent[0].DisplayName; got != "Jane Doe" {
		t.Errorf("expected display name Jane Doe, got %q", got)
	}

	want := []*dispatchlog.FaxRecord{{
		FaxID:       strPtr("fx-1"),
		ToNumber:    "5551234567",
		Status:      dispatchlog.StatusSent,
		Subject:     "Medical Order - Jane Doe",
		PatientName: "Jane Doe",
		DeviceType:  "Cgm",
		Provider:    dispatchlog.ProviderHumbleFax,
	}}
	if diff := cmp.Diff(want, rec.records, cmpopts.IgnoreFields(dispatchlog.FaxRecord{}, "ID")); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Send_FailureRecorded(t *testing.T) {
	svc, clients, rec := newTestService()
	clients.provider.sendFail = true

	res, err := svc.Send(context.Background(), SendInput{To: "5551234567", Data: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Phase != humblefax.PhaseUpload {
		t.Errorf("expected upload failure, got %+v", res)
	}
	if len(rec.records) != 1 || rec.records[0].Status != dispatchlog.StatusFailed || rec.records[0].FaxID != nil {
		t.Errorf("unexpected record: %+v", rec.records)
	}
}

func TestService_Send_Validation(t *testing.T) {
	svc, clients, _ := newTestService()

	tests := []struct {
		name string
		in   SendInput
		want error
	}{
		{"missing number", SendInput{Data: []byte("x")}, ErrMissingNumber},
		{"blank number", SendInput{To: "  ", Data: []byte("x")}, ErrMissingNumber},
		{"missing document", SendInput{To: "5551234567"}, ErrMissingDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Send(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(clients.provider.sent) != 0 {
		t.Errorf("expected no provider calls, got %d", len(clients.provider.sent))
	}
}

func TestService_Resend_LogsAgainstOriginal(t *testing.T) {
	svc, _, rec := newTestService()
	rec.records = append(rec.records, &dispatchlog.FaxRecord{
		FaxID:       strPtr("100"),
		ToNumber:    "5551234567",
		PatientName: "Jane Doe",
		NumPages:    2,
		Status:      dispatchlog.StatusSent,
	})

	res, err := svc.Resend(context.Background(), "100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.NewFaxID != "200" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(rec.records) != 2 {
		t.Fatalf("expected resend to be logged, got %d records", len(rec.records))
	}
	got := rec.records[1]
	if got.ProviderID() != "200" || got.ToNumber != "5551234567" || got.PatientName != "Jane Doe" || got.NumPages != 2 {
		t.Errorf("unexpected resend record: %+v", got)
	}
}

func TestService_Resend_UnknownOriginal(t *testing.T) {
	svc, _, rec := newTestService()

	res, err := svc.Resend(context.Background(), "100")
	if err != nil || !res.Success {
		t.Fatalf("unexpected result %+v, err %v", res, err)
	}
	if len(rec.records) != 0 {
		t.Errorf("expected nothing logged without an original, got %d", len(rec.records))
	}

	res, _ = svc.Resend(context.Background(), "missing")
	if res.Success || !errors.Is(res.Err, humblefax.ErrNotFound) {
		t.Errorf("expected not found result, got %+v", res)
	}
}

func TestService_Cancel_UpdatesLog(t *testing.T) {
	svc, clients, rec := newTestService()
	rec.records = append(rec.records, &dispatchlog.FaxRecord{FaxID: strPtr("100"), ToNumber: "5551234567", Status: dispatchlog.StatusSent})

	if err := svc.Cancel(context.Background(), "100"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.records[0].Status != dispatchlog.StatusCancelled {
		t.Errorf("expected cancelled, got %s", rec.records[0].Status)
	}

	// Unknown to the dispatch log is still a successful cancel.
	if err := svc.Cancel(context.Background(), "999"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"100", "999"}, clients.provider.cancelled); diff != "" {
		t.Errorf("cancel calls mismatch (-want +got):\n%s", diff)
	}

	clients.provider.cancelErr = humblefax.ErrCancelFailed
	if err := svc.Cancel(context.Background(), "100"); !errors.Is(err, humblefax.ErrCancelFailed) {
		t.Errorf("expected ErrCancelFailed, got %v", err)
	}
}

func TestService_NilRecorder(t *testing.T) {
	clients := &fakeClients{provider: &fakeProvider{}, media: &fakeMedia{}}
	svc := NewService(clients, nil, zerolog.Nop())

	if _, err := svc.Send(context.Background(), SendInput{To: "5551234567", Data: []byte("x")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Cancel(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_RegisterMedia(t *testing.T) {
	svc, clients, rec := newTestService()

	name, err := svc.RegisterMedia(context.Background(), "https://example.com/order.pdf", " order-1 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "order-1" {
		t.Errorf("expected order-1, got %q", name)
	}
	if diff := cmp.Diff([]string{"register:https://example.com/order.pdf"}, clients.media.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if len(rec.records) != 0 {
		t.Errorf("registration should not be logged as a fax: %+v", rec.records)
	}

	if _, err := svc.RegisterMedia(context.Background(), " ", "x"); !errors.Is(err, telnyx.ErrMissingMediaURL) {
		t.Errorf("expected ErrMissingMediaURL, got %v", err)
	}

	clients.err = telnyx.ErrNotConfigured
	if _, err := svc.RegisterMedia(context.Background(), "https://example.com/order.pdf", ""); !errors.Is(err, telnyx.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestService_SendMedia(t *testing.T) {
	svc, _, rec := newTestService()

	f, err := svc.SendMedia(context.Background(), "5551234567", "https://example.com/order.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID != "tx-5551234567" {
		t.Errorf("unexpected fax: %+v", f)
	}
	if len(rec.records) != 1 || rec.records[0].Provider != dispatchlog.ProviderTelnyx || rec.records[0].MediaURL != "https://example.com/order.pdf" {
		t.Errorf("unexpected record: %+v", rec.records)
	}

	if _, err := svc.SendMedia(context.Background(), "bad", "https://example.com/order.pdf"); !errors.Is(err, telnyx.ErrUnexpectedStatus) {
		t.Errorf("expected ErrUnexpectedStatus, got %v", err)
	}
	if rec.records[1].Status != dispatchlog.StatusFailed {
		t.Errorf("expected failed record, got %+v", rec.records[1])
	}

	if _, err := svc.SendMedia(context.Background(), "5551234567", ""); !errors.Is(err, telnyx.ErrMissingMediaURL) {
		t.Errorf("expected ErrMissingMediaURL, got %v", err)
	}
}

func TestService_SendMediaMany(t *testing.T) {
	svc, _, rec := newTestService()

	lines, err := svc.SendMediaMany(context.Background(), "111,bad\n222", "https://example.com/a.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 3 || lines[1].Success {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if len(rec.records) != 2 {
		t.Errorf("expected only successes logged, got %d", len(rec.records))
	}

	if _, err := svc.SendMediaMany(context.Background(), " ", "https://example.com/a.pdf"); !errors.Is(err, ErrMissingNumber) {
		t.Errorf("expected ErrMissingNumber, got %v", err)
	}
}
