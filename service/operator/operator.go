// SPDX-License-Identifier: BSD-3-Clause

package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/tendhost/tendhost/pkg/broadcast"
	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/log"
	"github.com/tendhost/tendhost/pkg/supervisor"
	"github.com/tendhost/tendhost/pkg/telemetry"
	"github.com/tendhost/tendhost/service"
)

const defaultLogo = `
 _                 _ _               _
| |_ ___ _ __   __| | |__   ___  ___| |_
| __/ _ \ '_ \ / _` + "`" + `| '_ \ / _ \/ __| __|
| ||  __/ | | | (_| | | | | (_) \__ \ |_
 \__\___|_| |_|\__,_|_| |_|\___/|___/\__|
`

// Compile-time assertion that Operator implements service.Service.
var _ service.Service = (*Operator)(nil)

// Operator is the control-plane actor: it loads the fleet configuration,
// builds the supervisor registry, registers every configured host, and
// then blocks for the lifetime of the process.
type Operator struct {
	config
	supervisor *supervisor.Supervisor
	provider   *telemetry.Provider
}

// New creates an Operator with the given options applied over sensible
// defaults (see defaultConfig).
func New(opts ...Option) *Operator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return &Operator{config: *cfg}
}

// Name returns the operator's configured service name.
func (o *Operator) Name() string {
	return o.name
}

// Run loads the fleet configuration, registers every host against a fresh
// supervisor, and blocks until ctx is canceled. On return it stops every
// registered host machine and shuts down the telemetry provider.
func (o *Operator) Run(ctx context.Context) (err error) {
	if o.name == "" {
		return ErrNameEmpty
	}
	if o.configPath == "" {
		return ErrConfigPathEmpty
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %w: %v", o.Name(), ErrPanicked, r)
		}
	}()

	provider, err := telemetry.NewProvider(o.telemetryOpts...)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	o.provider = provider
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.provider.Shutdown(shutdownCtx)
	}()

	l := o.logger
	if l == nil {
		l = log.GetGlobalLogger()
	}
	l = l.With("component", "operator")

	if !o.disableLogo {
		if o.customLogo != "" {
			l.Info(o.customLogo)
		} else {
			l.Info(defaultLogo)
		}
	}

	fleet, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	bus := broadcast.New(256)
	s := supervisor.New(o.factory, bus, fleet.Groups, o.collectorTTL)
	o.supervisor = s
	defer s.Stop()

	for _, host := range fleet.Hosts {
		regCtx, cancel := context.WithTimeout(ctx, o.timeout)
		err := s.Register(regCtx, host)
		cancel()
		if err != nil {
			l.ErrorContext(ctx, "failed to register host, continuing with the rest of the fleet",
				"host", host.Name, "error", fmt.Errorf("%w: %w", ErrRegisterHost, err))
			continue
		}
		l.InfoContext(ctx, "registered host", "host", host.Name)
	}

	l.InfoContext(ctx, "control plane ready", "hosts", len(fleet.Hosts))
	<-ctx.Done()
	l.InfoContext(ctx, "control plane shutting down")
	return nil
}

// Supervisor returns the running supervisor, or nil before Run has started
// one. A CLI or future HTTP layer uses this to issue ad hoc operations
// against a running operator.
func (o *Operator) Supervisor() *supervisor.Supervisor {
	return o.supervisor
}
