package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bidsmirror/internal/config"
	"bidsmirror/internal/hosting"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/services"
)

// Outcome is the result of ensuring a mirror exists.
type Outcome int

const (
	// Ready means the mirror exists, or was requested and is assumed usable.
	Ready Outcome = iota
	// Denied means the host refused the probe or the creation request.
	Denied
)

func (o Outcome) String() string {
	if o == Denied {
		return "denied"
	}
	return "ready"
}

// Host is the subset of the hosting API the manager needs.
type Host interface {
	Repository(ctx context.Context, name string) (hosting.Repository, error)
	Fork(ctx context.Context, name string) error
	CreateRepository(ctx context.Context, name, defaultBranch, description string) error
}

// Options tunes mirror creation and readiness polling.
type Options struct {
	CreateMode      string
	DefaultBranch   string
	ReadyTimeout    time.Duration
	PollInterval    time.Duration
	PollMaxInterval time.Duration
}

// OptionsFrom extracts mirror settings from the application config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		CreateMode:      cfg.Mirror.CreateMode,
		DefaultBranch:   cfg.Run.Branch,
		ReadyTimeout:    cfg.MirrorReadyTimeout(),
		PollInterval:    cfg.MirrorPollInterval(),
		PollMaxInterval: cfg.MirrorPollMaxInterval(),
	}
}

// Manager lazily creates per-unit mirror repositories.
type Manager struct {
	host    Host
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	sleeper func(time.Duration)
}

// Option customizes the manager.
type Option func(*Manager)

// WithClock replaces the wall clock and the poll sleep (useful for tests).
func WithClock(now func() time.Time, sleeper func(time.Duration)) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
		m.sleeper = sleeper
	}
}

// NewManager constructs a Manager.
func NewManager(host Host, opts Options, logger *slog.Logger, options ...Option) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PollMaxInterval < opts.PollInterval {
		opts.PollMaxInterval = opts.PollInterval
	}
	m := &Manager{
		host:   host,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "mirror"),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Ensure makes sure the unit's mirror exists. When the probe reports it
// missing, creation is requested and the probe is repeated with exponential
// backoff until it succeeds or the readiness timeout passes, at which point
// Ready is returned optimistically. A 403 on probe or creation yields Denied.
func (m *Manager) Ensure(ctx context.Context, unitID string) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)

	_, err := m.host.Repository(ctx, unitID)
	switch {
	case err == nil:
		logger.Debug("mirror present")
		return Ready, nil
	case errors.Is(err, services.ErrAccessDenied):
		logging.WarnWithContext(logger, "mirror probe denied", "mirror_denied", logging.Error(err))
		return Denied, nil
	case !errors.Is(err, services.ErrNotFound):
		return Ready, services.Wrap(services.ErrTransient, "mirror", "probe", "", err)
	}

	if err := m.requestCreation(ctx, unitID); err != nil {
		if errors.Is(err, services.ErrAccessDenied) {
			logging.WarnWithContext(logger, "mirror creation denied", "mirror_denied",
				logging.String("create_mode", m.opts.CreateMode),
				logging.Error(err),
			)
			return Denied, nil
		}
		return Ready, services.Wrap(services.ErrTransient, "mirror", "create", m.opts.CreateMode, err)
	}
	logger.Info("mirror creation requested", logging.String("create_mode", m.opts.CreateMode))

	return m.awaitReady(ctx, logger, unitID)
}

func (m *Manager) requestCreation(ctx context.Context, unitID string) error {
	if m.opts.CreateMode == config.MirrorCreateCreate {
		description := fmt.Sprintf("BIDS-formatted version of Dandiset %s.", unitID)
		return m.host.CreateRepository(ctx, unitID, m.opts.DefaultBranch, description)
	}
	return m.host.Fork(ctx, unitID)
}

func (m *Manager) awaitReady(ctx context.Context, logger *slog.Logger, unitID string) (Outcome, error) {
	started := m.now()
	deadline := started.Add(m.opts.ReadyTimeout)
	for attempt := 1; ; attempt++ {
		remaining := deadline.Sub(m.now())
		if remaining <= 0 {
			break
		}
		delay := hosting.Backoff(m.opts.PollInterval, m.opts.PollMaxInterval, attempt)
		if delay > remaining {
			delay = remaining
		}
		if err := hosting.Sleep(ctx, m.sleeper, delay); err != nil {
			return Ready, err
		}

		_, err := m.host.Repository(ctx, unitID)
		switch {
		case err == nil:
			logger.Info("mirror ready",
				logging.Int("probes", attempt),
				logging.Duration("waited", m.now().Sub(started)),
			)
			return Ready, nil
		case errors.Is(err, services.ErrAccessDenied):
			return Denied, nil
		case errors.Is(err, services.ErrNotFound):
			logger.Debug("mirror not ready yet", logging.Int("probe", attempt))
		default:
			logger.Debug("mirror readiness probe failed", logging.Int("probe", attempt), logging.Error(err))
		}
	}

	logging.WarnWithContext(logger, "mirror not confirmed ready; continuing optimistically", "mirror_ready_timeout",
		logging.Duration("ready_timeout", m.opts.ReadyTimeout),
		logging.String(logging.FieldErrorHint, "a clone failure will be retried on the next pass"),
	)
	return Ready, nil
}
