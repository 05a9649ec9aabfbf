package apiconfig

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmefax/faxdesk/internal/platform/db"
)

type repoPG struct{ conn db.Querier }

func NewRepoPG(conn db.Querier) Repository {
	return &repoPG{conn: conn}
}

const cols = `id, service, COALESCE(api_key, ''), COALESCE(secret_key, ''),
	COALESCE(account_sid, ''), COALESCE(auth_token, ''), COALESCE(from_number, ''),
	COALESCE(connection_id, ''), is_active, created_at, updated_at`

func (r *repoPG) scanRow(row pgx.Row) (*APIConfiguration, error) {
	var a APIConfiguration
	err := row.Scan(&a.ID, &a.Service, &a.APIKey, &a.SecretKey,
		&a.AccountSID, &a.AuthToken, &a.FromNumber,
		&a.ConnectionID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// Upsert inserts the row for a.Service or replaces its credentials. The
// stored id and created_at are written back to a.
func (r *repoPG) Upsert(ctx context.Context, a *APIConfiguration) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.conn.QueryRow(ctx, `
		INSERT INTO api_configurations (id, service, api_key, secret_key, account_sid,
			auth_token, from_number, connection_id, is_active)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),$9)
		ON CONFLICT (service) DO UPDATE SET
			api_key = EXCLUDED.api_key, secret_key = EXCLUDED.secret_key,
			account_sid = EXCLUDED.account_sid, auth_token = EXCLUDED.auth_token,
			from_number = EXCLUDED.from_number, connection_id = EXCLUDED.connection_id,
			is_active = EXCLUDED.is_active, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		a.ID, a.Service, a.APIKey, a.SecretKey, a.AccountSID,
		a.AuthToken, a.FromNumber, a.ConnectionID, a.IsActive).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByService(ctx context.Context, service string) (*APIConfiguration, error) {
	return r.scanRow(r.conn.QueryRow(ctx, `SELECT `+cols+` FROM api_configurations WHERE service = $1`, service))
}

func (r *repoPG) List(ctx context.Context) ([]*APIConfiguration, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+cols+` FROM api_configurations ORDER BY service`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*APIConfiguration
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) SetActive(ctx context.Context, service string, active bool) error {
	tag, err := r.conn.Exec(ctx, `UPDATE api_configurations SET is_active = $2, updated_at = NOW() WHERE service = $1`, service, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, service string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM api_configurations WHERE service = $1`, service)
	return err
}
