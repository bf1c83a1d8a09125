package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

// ErrMissingExternalID indicates the center has no scheduling identifier configured.
var ErrMissingExternalID = errors.New("scheduling external id is required")

const (
	ProviderCalendly = "calendly"
	ProviderMock     = "mock"
)

// ScheduleProviderConfig configures scheduling providers.
type ScheduleProviderConfig struct {
	Provider        string
	Calendly        CalendlyConfig
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// NewScheduleProvider creates the configured provider wrapped with a per-call
// timeout and a circuit breaker.
func NewScheduleProvider(cfg ScheduleProviderConfig) (providers.ScheduleProvider, error) {
	var inner providers.ScheduleProvider
	switch cfg.Provider {
	case ProviderCalendly:
		if cfg.Calendly.APIKey == "" {
			return nil, fmt.Errorf("calendly provider requires an API key")
		}
		inner = NewCalendlyAdapter(cfg.Calendly)
	case ProviderMock, "":
		inner = NewMockAdapter(cfg.Calendly.WebhookSecret)
	default:
		return nil, fmt.Errorf("unknown scheduling provider %q", cfg.Provider)
	}

	return NewResilientProvider(inner, cfg.Timeout, cfg.BreakerFailures, cfg.BreakerCooldown), nil
}

// ResilientProvider bounds every provider call with a timeout and stops
// calling a failing provider until the cooldown elapses.
type ResilientProvider struct {
	inner   providers.ScheduleProvider
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewResilientProvider wraps inner. failures consecutive errors open the breaker.
func NewResilientProvider(inner providers.ScheduleProvider, timeout time.Duration, failures uint32, cooldown time.Duration) *ResilientProvider {
	if failures == 0 {
		failures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "schedule-provider",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes say nothing about provider health.
			return err == nil || apperrors.IsType(err, apperrors.ErrorTypeValidation) || errors.Is(err, ErrMissingExternalID)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &ResilientProvider{inner: inner, timeout: timeout, breaker: breaker}
}

// CreateEvent calls the inner provider through the breaker
func (p *ResilientProvider) CreateEvent(ctx context.Context, center *entities.Center, service *entities.Service, invitee *entities.User, slot entities.Slot) (*entities.ExternalEventRef, error) {
	result, err := p.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return p.inner.CreateEvent(ctx, center, service, invitee, slot)
	})
	if err != nil {
		return nil, err
	}
	return result.(*entities.ExternalEventRef), nil
}

// CancelEvent calls the inner provider through the breaker
func (p *ResilientProvider) CancelEvent(ctx context.Context, ref *entities.ExternalEventRef, reason string) error {
	_, err := p.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, p.inner.CancelEvent(ctx, ref, reason)
	})
	return err
}

// VerifySignature is local and bypasses the breaker
func (p *ResilientProvider) VerifySignature(rawPayload []byte, signatureHeader string) bool {
	return p.inner.VerifySignature(rawPayload, signatureHeader)
}

// State exposes the breaker state for health reporting
func (p *ResilientProvider) State() gobreaker.State {
	return p.breaker.State()
}

func (p *ResilientProvider) execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.NewExternalError("scheduling provider unavailable", err)
	}
	return result, err
}
