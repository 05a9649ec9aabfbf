package fax

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/apiconfig"
	"github.com/dmefax/faxdesk/internal/platform/humblefax"
	"github.com/dmefax/faxdesk/internal/platform/telnyx"
)

// ResolvedClients builds provider clients from the credentials the resolver
// returns at call time, so stored configuration changes apply to the next
// request.
type ResolvedClients struct {
	resolver *apiconfig.Resolver
	logger   zerolog.Logger
}

func NewResolvedClients(r *apiconfig.Resolver, logger zerolog.Logger) *ResolvedClients {
	return &ResolvedClients{resolver: r, logger: logger}
}

// HumbleFaxClient returns the concrete client, for callers such as the bulk
// orchestrator that need more than Provider.
func (r *ResolvedClients) HumbleFaxClient(ctx context.Context) (*humblefax.Client, error) {
	cfg, err := r.resolver.HumbleFax(ctx)
	if err != nil {
		return nil, err
	}
	return humblefax.NewClient(cfg, r.logger), nil
}

func (r *ResolvedClients) HumbleFax(ctx context.Context) (Provider, error) {
	c, err := r.HumbleFaxClient(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ResolvedClients) Telnyx(ctx context.Context) (MediaSender, error) {
	cfg, err := r.resolver.Telnyx(ctx)
	if err != nil {
		return nil, err
	}
	return telnyx.NewClient(cfg, r.logger), nil
}
