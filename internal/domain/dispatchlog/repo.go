package dispatchlog

import (
	"context"

	"github.com/google/uuid"
)

type FaxRepository interface {
	Create(ctx context.Context, f *FaxRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*FaxRecord, error)
	GetByFaxID(ctx context.Context, faxID string) (*FaxRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status, errMsg string) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*FaxRecord, int, error)
}

type SMSRepository interface {
	Create(ctx context.Context, s *SMSRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*SMSRecord, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*SMSRecord, int, error)
}
