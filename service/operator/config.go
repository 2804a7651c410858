// SPDX-License-Identifier: BSD-3-Clause

package operator

import (
	"log/slog"
	"time"

	"github.com/tendhost/tendhost/pkg/hostdep"
	"github.com/tendhost/tendhost/pkg/log"
	"github.com/tendhost/tendhost/pkg/telemetry"
)

type config struct {
	name          string
	configPath    string
	disableLogo   bool
	customLogo    string
	logger        *slog.Logger
	timeout       time.Duration
	collectorTTL  time.Duration
	factory       hostdep.Factory
	telemetryOpts []telemetry.Option
}

type Option interface {
	apply(*config)
}

type nameOption struct{ name string }

func (o *nameOption) apply(c *config) { c.name = o.name }

// WithName sets the operator's service name, used as its supervision tree
// child name and in its logging.
func WithName(name string) Option {
	return &nameOption{name: name}
}

type configPathOption struct{ path string }

func (o *configPathOption) apply(c *config) { c.configPath = o.path }

// WithConfigPath sets the path the operator loads the fleet configuration
// (pkg/config) from on startup.
func WithConfigPath(path string) Option {
	return &configPathOption{path: path}
}

type disableLogoOption struct{ disableLogo bool }

func (o *disableLogoOption) apply(c *config) { c.disableLogo = o.disableLogo }

// WithDisableLogo controls whether the startup logo is printed.
func WithDisableLogo(disableLogo bool) Option {
	return &disableLogoOption{disableLogo: disableLogo}
}

type customLogoOption struct{ customLogo string }

func (o *customLogoOption) apply(c *config) { c.customLogo = o.customLogo }

// WithCustomLogo overrides the default startup logo.
func WithCustomLogo(customLogo string) Option {
	return &customLogoOption{customLogo: customLogo}
}

type loggerOption struct{ logger *slog.Logger }

func (o *loggerOption) apply(c *config) { c.logger = o.logger }

// WithLogger sets a custom structured logger. If not provided, the global
// logger from pkg/log is used.
func WithLogger(logger *slog.Logger) Option {
	return &loggerOption{logger: logger}
}

type timeoutOption struct{ timeout time.Duration }

func (o *timeoutOption) apply(c *config) { c.timeout = o.timeout }

// WithTimeout sets the per-host registration timeout.
func WithTimeout(timeout time.Duration) Option {
	return &timeoutOption{timeout: timeout}
}

type collectorTTLOption struct{ ttl time.Duration }

func (o *collectorTTLOption) apply(c *config) { c.collectorTTL = o.ttl }

// WithCollectorTTL sets the inventory snapshot cache TTL passed to every
// host's inventory.Collector. Zero disables the richer snapshot collector
// entirely, leaving only the FSM-driving package query.
func WithCollectorTTL(ttl time.Duration) Option {
	return &collectorTTLOption{ttl: ttl}
}

type factoryOption struct{ factory hostdep.Factory }

func (o *factoryOption) apply(c *config) { c.factory = o.factory }

// WithFactory overrides the host-dependency factory. Defaults to
// hostdep.NewDefaultFactory(); tests substitute internal/fleetsim.Factory.
func WithFactory(factory hostdep.Factory) Option {
	return &factoryOption{factory: factory}
}

type telemetryOption struct{ opts []telemetry.Option }

func (o *telemetryOption) apply(c *config) { c.telemetryOpts = o.opts }

// WithTelemetry configures the OpenTelemetry provider started alongside
// the operator.
func WithTelemetry(opts ...telemetry.Option) Option {
	return &telemetryOption{opts: opts}
}

func defaultConfig() *config {
	return &config{
		name:         "tendhostd",
		configPath:   "/etc/tendhost/fleet.yaml",
		timeout:      10 * time.Second,
		collectorTTL: 30 * time.Second,
		factory:      hostdep.NewDefaultFactory(),
		logger:       log.GetGlobalLogger(),
	}
}
