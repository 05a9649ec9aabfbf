package apiconfig

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/config"
	"github.com/dmefax/faxdesk/internal/platform/humblefax"
	"github.com/dmefax/faxdesk/internal/platform/telnyx"
	"github.com/dmefax/faxdesk/internal/platform/twilio"
)

// ActiveLookup is the part of Service the Resolver needs.
type ActiveLookup interface {
	Active(ctx context.Context, service string) (*APIConfiguration, error)
}

// Resolver builds provider client configuration. A stored active row wins
// field by field; anything it leaves empty comes from the environment. A nil
// store resolves from the environment only.
type Resolver struct {
	store  ActiveLookup
	env    *config.Config
	logger zerolog.Logger
}

func NewResolver(store ActiveLookup, env *config.Config, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, env: env, logger: logger}
}

func (r *Resolver) lookup(ctx context.Context, service string) *APIConfiguration {
	if r.store == nil {
		return &APIConfiguration{}
	}
	a, err := r.store.Active(ctx, service)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			r.logger.Warn().Err(err).Str("service", service).Msg("api configuration lookup failed, using environment")
		}
		return &APIConfiguration{}
	}
	return a
}

func pick(stored, env string) string {
	if stored != "" {
		return stored
	}
	return env
}

// HumbleFax resolves the HumbleFax account configuration.
func (r *Resolver) HumbleFax(ctx context.Context) (humblefax.Config, error) {
	a := r.lookup(ctx, ServiceHumbleFax)
	cfg := humblefax.Config{
		BaseURL:    r.env.HumbleFaxBaseURL,
		AccessKey:  pick(a.APIKey, r.env.HumbleFaxAccessKey),
		SecretKey:  pick(a.SecretKey, r.env.HumbleFaxSecretKey),
		FromNumber: pick(a.FromNumber, r.env.HumbleFaxFromNumber),
	}
	return cfg, cfg.Validate()
}

// Twilio resolves the Twilio account configuration.
func (r *Resolver) Twilio(ctx context.Context) (twilio.Config, error) {
	a := r.lookup(ctx, ServiceTwilio)
	cfg := twilio.Config{
		BaseURL:    r.env.TwilioBaseURL,
		LookupURL:  r.env.TwilioLookupURL,
		AccountSID: pick(a.AccountSID, r.env.TwilioAccountSID),
		AuthToken:  pick(a.AuthToken, r.env.TwilioAuthToken),
		FromNumber: pick(a.FromNumber, r.env.TwilioFromNumber),
		CarrierTTL: r.env.CarrierCacheTTL,
	}
	return cfg, cfg.Validate()
}

// Telnyx resolves the Telnyx account configuration.
func (r *Resolver) Telnyx(ctx context.Context) (telnyx.Config, error) {
	a := r.lookup(ctx, ServiceTelnyx)
	cfg := telnyx.Config{
		BaseURL:      r.env.TelnyxBaseURL,
		APIKey:       pick(a.APIKey, r.env.TelnyxAPIKey),
		ConnectionID: pick(a.ConnectionID, r.env.TelnyxConnectionID),
		FromNumber:   pick(a.FromNumber, r.env.TelnyxFromNumber),
	}
	return cfg, cfg.Validate()
}
