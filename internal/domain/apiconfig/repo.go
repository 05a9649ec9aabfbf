package apiconfig

import "context"

type Repository interface {
	Upsert(ctx context.Context, a *APIConfiguration) error
	GetByService(ctx context.Context, service string) (*APIConfiguration, error)
	List(ctx context.Context) ([]*APIConfiguration, error)
	SetActive(ctx context.Context, service string, active bool) error
	Delete(ctx context.Context, service string) error
}
