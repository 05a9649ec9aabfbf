package dispatchlog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmefax/faxdesk/internal/platform/db"
)

// ---------------------------------------------------------------------------
// Fax records
// ---------------------------------------------------------------------------

type faxRepoPG struct{ conn db.Querier }

func NewFaxRepoPG(conn db.Querier) FaxRepository {
	return &faxRepoPG{conn: conn}
}

const faxCols = `id, fax_id, to_number, from_number, status,
	COALESCE(media_url, ''), COALESCE(subject, ''), num_pages, direction,
	COALESCE(patient_name, ''), COALESCE(device_type, ''), provider,
	COALESCE(error, ''), created_at, updated_at`

func (r *faxRepoPG) scanRow(row pgx.Row) (*FaxRecord, error) {
	var f FaxRecord
	err := row.Scan(&f.ID, &f.FaxID, &f.ToNumber, &f.FromNumber, &f.Status,
		&f.MediaURL, &f.Subject, &f.NumPages, &f.Direction,
		&f.PatientName, &f.DeviceType, &f.Provider,
		&f.Error, &f.CreatedAt, &f.UpdatedAt)
	return &f, err
}

func (r *faxRepoPG) Create(ctx context.Context, f *FaxRecord) error {
	f.ID = uuid.New()
	return r.conn.QueryRow(ctx, `
		INSERT INTO fax_records (id, fax_id, to_number, from_number, status,
			media_url, subject, num_pages, direction,
			patient_name, device_type, provider, error)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),$8,$9,NULLIF($10,''),NULLIF($11,''),$12,NULLIF($13,''))
		RETURNING created_at, updated_at`,
		f.ID, f.FaxID, f.ToNumber, f.FromNumber, f.Status,
		f.MediaURL, f.Subject, f.NumPages, f.Direction,
		f.PatientName, f.DeviceType, f.Provider, f.Error).Scan(&f.CreatedAt, &f.UpdatedAt)
}

func (r *faxRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FaxRecord, error) {
	return r.scanRow(r.conn.QueryRow(ctx, `SELECT `+faxCols+` FROM fax_records WHERE id = $1`, id))
}

func (r *faxRepoPG) GetByFaxID(ctx context.Context, faxID string) (*FaxRecord, error) {
	return r.scanRow(r.conn.QueryRow(ctx, `SELECT `+faxCols+` FROM fax_records WHERE fax_id = $1`, faxID))
}

func (r *faxRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status, errMsg string) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE fax_records SET status = $2, error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`, id, status, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *faxRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*FaxRecord, int, error) {
	where, args := buildFilter(params, []string{"status", "provider", "direction", "to_number"})

	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM fax_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + faxCols + ` FROM fax_records` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*FaxRecord
	for rows.Next() {
		f, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	return items, total, rows.Err()
}

// ---------------------------------------------------------------------------
// SMS records
// ---------------------------------------------------------------------------

type smsRepoPG struct{ conn db.Querier }

func NewSMSRepoPG(conn db.Querier) SMSRepository {
	return &smsRepoPG{conn: conn}
}

const smsCols = `id, sid, to_number, from_number, message, status, COALESCE(error, ''), created_at`

func (r *smsRepoPG) scanRow(row pgx.Row) (*SMSRecord, error) {
	var s SMSRecord
	err := row.Scan(&s.ID, &s.SID, &s.ToNumber, &s.FromNumber, &s.Message, &s.Status, &s.Error, &s.CreatedAt)
	return &s, err
}

func (r *smsRepoPG) Create(ctx context.Context, s *SMSRecord) error {
	s.ID = uuid.New()
	return r.conn.QueryRow(ctx, `
		INSERT INTO sms_records (id, sid, to_number, from_number, message, status, error)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''))
		RETURNING created_at`,
		s.ID, s.SID, s.ToNumber, s.FromNumber, s.Message, s.Status, s.Error).Scan(&s.CreatedAt)
}

func (r *smsRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SMSRecord, error) {
	return r.scanRow(r.conn.QueryRow(ctx, `SELECT `+smsCols+` FROM sms_records WHERE id = $1`, id))
}

func (r *smsRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*SMSRecord, int, error) {
	where, args := buildFilter(params, []string{"status", "to_number"})

	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM sms_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + smsCols + ` FROM sms_records` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*SMSRecord
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// buildFilter turns the recognised keys of params into an equality WHERE
// clause. Keys are taken from columns, never from params, so the SQL text is
// fixed by the caller.
func buildFilter(params map[string]string, columns []string) (string, []any) {
	where := ` WHERE 1=1`
	var args []any
	for _, col := range columns {
		v, ok := params[col]
		if !ok || v == "" {
			continue
		}
		args = append(args, v)
		where += fmt.Sprintf(` AND %s = $%d`, col, len(args))
	}
	return where, args
}
