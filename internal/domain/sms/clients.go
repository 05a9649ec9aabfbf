package sms

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/apiconfig"
	"github.com/dmefax/faxdesk/internal/platform/cache"
	"github.com/dmefax/faxdesk/internal/platform/notification"
	"github.com/dmefax/faxdesk/internal/platform/twilio"
)

// ResolvedClients builds a Twilio client per call from the resolver. The
// carrier cache and template engine are shared across clients.
type ResolvedClients struct {
	resolver  *apiconfig.Resolver
	carriers  cache.Store
	templates *notification.TemplateEngine
	logger    zerolog.Logger
}

func NewResolvedClients(r *apiconfig.Resolver, carriers cache.Store, templates *notification.TemplateEngine, logger zerolog.Logger) *ResolvedClients {
	return &ResolvedClients{resolver: r, carriers: carriers, templates: templates, logger: logger}
}

func (r *ResolvedClients) Twilio(ctx context.Context) (Client, error) {
	cfg, err := r.resolver.Twilio(ctx)
	if err != nil {
		return nil, err
	}
	var opts []twilio.Option
	if r.carriers != nil {
		opts = append(opts, twilio.WithCarrierCache(r.carriers))
	}
	if r.templates != nil {
		opts = append(opts, twilio.WithTemplates(r.templates))
	}
	return twilio.NewClient(cfg, r.logger, opts...), nil
}
