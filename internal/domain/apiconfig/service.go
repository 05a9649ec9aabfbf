package apiconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/platform/db"
	"github.com/dmefax/faxdesk/internal/platform/secrets"
)

var (
	ErrNotConfigured  = errors.New("service is not configured")
	ErrUnknownService = errors.New("unknown service")
	ErrMissingField   = errors.New("missing required field")
)

var validServices = map[string]bool{
	ServiceTelnyx: true, ServiceHumbleFax: true, ServiceTwilio: true,
}

// requiredFields lists, per service, the fields an operator must supply.
var requiredFields = map[string][]string{
	ServiceTelnyx:    {"api_key", "from_number"},
	ServiceHumbleFax: {"api_key", "secret_key", "from_number"},
	ServiceTwilio:    {"account_sid", "auth_token", "from_number"},
}

func field(a *APIConfiguration, name string) string {
	switch name {
	case "api_key":
		return a.APIKey
	case "secret_key":
		return a.SecretKey
	case "account_sid":
		return a.AccountSID
	case "auth_token":
		return a.AuthToken
	case "from_number":
		return a.FromNumber
	}
	return ""
}

type Service struct {
	repo   Repository
	sealer *secrets.Sealer
	logger zerolog.Logger
}

func NewService(repo Repository, sealer *secrets.Sealer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, sealer: sealer, logger: logger.With().Str("component", "apiconfig").Logger()}
}

// Save creates or replaces the configuration for a.Service. Secret fields
// left empty keep their stored value so a form showing masked secrets can
// be resubmitted unchanged.
func (s *Service) Save(ctx context.Context, a *APIConfiguration) error {
	a.Service = strings.ToLower(strings.TrimSpace(a.Service))
	if !validServices[a.Service] {
		return fmt.Errorf("%w: %q", ErrUnknownService, a.Service)
	}

	existing, err := s.Get(ctx, a.Service)
	switch {
	case errors.Is(err, ErrNotConfigured):
	case err != nil:
		return err
	default:
		a.ID = existing.ID
		keep(&a.APIKey, existing.APIKey)
		keep(&a.SecretKey, existing.SecretKey)
		keep(&a.AuthToken, existing.AuthToken)
	}

	for _, name := range requiredFields[a.Service] {
		if strings.TrimSpace(field(a, name)) == "" {
			return fmt.Errorf("%w: %s is required for %s", ErrMissingField, name, a.Service)
		}
	}

	sealed, err := s.seal(a)
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, sealed); err != nil {
		return fmt.Errorf("save %s configuration: %w", a.Service, err)
	}
	a.ID, a.CreatedAt, a.UpdatedAt = sealed.ID, sealed.CreatedAt, sealed.UpdatedAt

	s.logger.Info().Str("service", a.Service).Bool("active", a.IsActive).
		Str("api_key", secrets.Mask(a.APIKey)).Msg("api configuration saved")
	return nil
}

func keep(dst *string, stored string) {
	if *dst == "" {
		*dst = stored
	}
}

// Get returns the decrypted configuration for service, active or not.
func (s *Service) Get(ctx context.Context, service string) (*APIConfiguration, error) {
	if !validServices[service] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	a, err := s.repo.GetByService(ctx, service)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	return s.open(a)
}

// Active returns the configuration for service, or ErrNotConfigured when no
// row exists or the row is disabled.
func (s *Service) Active(ctx context.Context, service string) (*APIConfiguration, error) {
	a, err := s.Get(ctx, service)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrNotConfigured
	}
	return a, nil
}

// List returns all stored configurations, decrypted.
func (s *Service) List(ctx context.Context) ([]*APIConfiguration, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*APIConfiguration, 0, len(items))
	for _, a := range items {
		opened, err := s.open(a)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (s *Service) SetActive(ctx context.Context, service string, active bool) error {
	if !validServices[service] {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	if err := s.repo.SetActive(ctx, service, active); err != nil {
		if db.IsNotFound(err) {
			return ErrNotConfigured
		}
		return err
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, service string) error {
	if !validServices[service] {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return s.repo.Delete(ctx, service)
}

func (s *Service) seal(a *APIConfiguration) (*APIConfiguration, error) {
	out := *a
	for _, f := range []*string{&out.APIKey, &out.SecretKey, &out.AuthToken} {
		v, err := s.sealer.Seal(*f)
		if err != nil {
			return nil, fmt.Errorf("seal credentials: %w", err)
		}
		*f = v
	}
	return &out, nil
}

func (s *Service) open(a *APIConfiguration) (*APIConfiguration, error) {
	out := *a
	for _, f := range []*string{&out.APIKey, &out.SecretKey, &out.AuthToken} {
		v, err := s.sealer.Open(*f)
		if err != nil {
			return nil, fmt.Errorf("open %s credentials: %w", a.Service, err)
		}
		*f = v
	}
	return &out, nil
}
