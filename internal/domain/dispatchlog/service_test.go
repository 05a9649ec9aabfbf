package dispatchlog

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// -- Mock Repositories --

type mockFaxRepo struct {
	items map[uuid.UUID]*FaxRecord
}

func newMockFaxRepo() *mockFaxRepo {
	return &mockFaxRepo{items: make(map[uuid.UUID]*FaxRecord)}
}

func (m *mockFaxRepo) Create(_ context.Context, f *FaxRecord) error {
	f.ID = uuid.New()
	f.CreatedAt = time.Now().Add(time.Duration(len(m.items)) * time.Millisecond)
	f.UpdatedAt = f.CreatedAt
	m.items[f.ID] = f
	return nil
}

func (m *mockFaxRepo) GetByID(_ context.Context, id uuid.UUID) (*FaxRecord, error) {
	f, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return f, nil
}

func (m *mockFaxRepo) GetByFaxID(_ context.Context, faxID string) (*FaxRecord, error) {
	for _, f := range m.items {
		if f.ProviderID() == faxID {
			return f, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockFaxRepo) UpdateStatus(_ context.Context, id uuid.UUID, status, errMsg string) error {
	f, ok := m.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	f.Status = status
	f.Error = errMsg
	return nil
}

func (m *mockFaxRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*FaxRecord, int, error) {
	var result []*FaxRecord
	for _, f := range m.items {
		if v := params["status"]; v != "" && f.Status != v {
			continue
		}
		if v := params["provider"]; v != "" && f.Provider != v {
			continue
		}
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := len(result)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

type mockSMSRepo struct {
	items map[uuid.UUID]*SMSRecord
}

func newMockSMSRepo() *mockSMSRepo {
	return &mockSMSRepo{items: make(map[uuid.UUID]*SMSRecord)}
}

func (m *mockSMSRepo) Create(_ context.Context, s *SMSRecord) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	m.items[s.ID] = s
	return nil
}

func (m *mockSMSRepo) GetByID(_ context.Context, id uuid.UUID) (*SMSRecord, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockSMSRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*SMSRecord, int, error) {
	var result []*SMSRecord
	for _, s := range m.items {
		if v := params["status"]; v != "" && s.Status != v {
			continue
		}
		result = append(result, s)
	}
	return result, len(result), nil
}

func newTestService() *Service {
	return NewService(newMockFaxRepo(), newMockSMSRepo(), zerolog.Nop())
}

func strPtr(s string) *string { return &s }

// -- Fax Tests --

func TestService_RecordFax_Defaults(t *testing.T) {
	svc := newTestService()
	f := &FaxRecord{ToNumber: "5551234567", FromNumber: "5559876543"}
	if err := svc.RecordFax(context.Background(), f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if f.Status != StatusPending {
		t.Errorf("expected status pending, got %s", f.Status)
	}
	if f.Provider != ProviderHumbleFax {
		t.Errorf("expected provider humblefax, got %s", f.Provider)
	}
	if f.Direction != DirectionOutbound {
		t.Errorf("expected direction outbound, got %s", f.Direction)
	}
	if f.NumPages != 1 {
		t.Errorf("expected 1 page, got %d", f.NumPages)
	}
}

func TestService_RecordFax_EmptyFaxIDBecomesNil(t *testing.T) {
	svc := newTestService()
	f := &FaxRecord{ToNumber: "5551234567", FaxID: strPtr(""), Status: StatusFailed}
	if err := svc.RecordFax(context.Background(), f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FaxID != nil {
		t.Errorf("expected nil fax id, got %q", *f.FaxID)
	}
}

func TestService_RecordFax_Validation(t *testing.T) {
	tests := []struct {
		name string
		rec  FaxRecord
	}{
		{"missing to_number", FaxRecord{}},
		{"bad status", FaxRecord{ToNumber: "1", Status: "queued"}},
		{"bad provider", FaxRecord{ToNumber: "1", Provider: "efax"}},
		{"bad direction", FaxRecord{ToNumber: "1", Direction: "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			rec := tt.rec
			if err := svc.RecordFax(context.Background(), &rec); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestService_RecordFax_InvalidStatusIsSentinel(t *testing.T) {
	svc := newTestService()
	err := svc.RecordFax(context.Background(), &FaxRecord{ToNumber: "1", Status: "queued"})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_GetFax_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetFax(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_UpdateFaxStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	f := &FaxRecord{ToNumber: "5551234567", FaxID: strPtr("fx-1"), Status: StatusSent}
	if err := svc.RecordFax(ctx, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := svc.UpdateFaxStatus(ctx, "fx-1", StatusDelivered, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusDelivered {
		t.Errorf("expected delivered, got %s", updated.Status)
	}

	got, _ := svc.GetFax(ctx, f.ID)
	if got.Status != StatusDelivered {
		t.Errorf("expected stored status delivered, got %s", got.Status)
	}
}

func TestService_UpdateFaxStatus_Errors(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.UpdateFaxStatus(ctx, "fx-1", "bogus", ""); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.UpdateFaxStatus(ctx, "missing", StatusFailed, "busy"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListFaxes_Filter(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.RecordFax(ctx, &FaxRecord{ToNumber: "1", Status: StatusSent})
	svc.RecordFax(ctx, &FaxRecord{ToNumber: "2", Status: StatusFailed})
	svc.RecordFax(ctx, &FaxRecord{ToNumber: "3", Status: StatusSent, Provider: ProviderTelnyx})

	items, total, err := svc.ListFaxes(ctx, map[string]string{"status": StatusSent}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 sent faxes, got total=%d len=%d", total, len(items))
	}

	items, total, _ = svc.ListFaxes(ctx, map[string]string{"provider": ProviderTelnyx}, 10, 0)
	if total != 1 || items[0].ToNumber != "3" {
		t.Errorf("expected the telnyx fax, got %+v", items)
	}
}

// -- SMS Tests --

func TestService_RecordSMS(t *testing.T) {
	svc := newTestService()
	m := &SMSRecord{ToNumber: "+15551234567", FromNumber: "+15550000000", Message: "hello", SID: strPtr("SM1"), Status: StatusSent}
	if err := svc.RecordSMS(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.GetSMS(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Message != "hello" {
		t.Errorf("expected message hello, got %s", got.Message)
	}
}

func TestService_RecordSMS_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if err := svc.RecordSMS(ctx, &SMSRecord{Message: "x"}); err == nil {
		t.Error("expected error for missing to_number")
	}
	if err := svc.RecordSMS(ctx, &SMSRecord{ToNumber: "1"}); err == nil {
		t.Error("expected error for missing message")
	}
	if err := svc.RecordSMS(ctx, &SMSRecord{ToNumber: "1", Message: "x", Status: StatusCancelled}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus for cancelled sms, got %v", err)
	}
}

func TestBuildFilter(t *testing.T) {
	where, args := buildFilter(map[string]string{
		"status":    "sent",
		"provider":  "",
		"ignored":   "x",
		"to_number": "5551234567",
	}, []string{"status", "provider", "direction", "to_number"})

	want := ` WHERE 1=1 AND status = $1 AND to_number = $2`
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 2 || args[0] != "sent" || args[1] != "5551234567" {
		t.Errorf("unexpected args %v", args)
	}
}
