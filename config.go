package rebind

import (
	"github.com/caarlos0/env/v8"
	"github.com/pkg/errors"
)

// Config controls a Rebinder.
type Config struct {
	// MaxRebindings caps the total number of rebindings a registry will
	// hold across all registrations. 0, the default, means no limit.
	MaxRebindings int `env:"REBIND_MAX_REBINDINGS"`

	// ProtectConst makes __DATA_CONST pointer sections writable for the
	// duration of a rebind and restores their old protection afterwards.
	ProtectConst bool `env:"REBIND_PROTECT_CONST" envDefault:"true"`

	// Debug makes Default raise the log level so subscriptions, rescans and
	// rebound slots are logged.
	Debug bool `env:"REBIND_DEBUG"`
}

// DefaultConfig returns the defaults ConfigFromEnv uses when nothing is set.
func DefaultConfig() Config {
	return Config{
		ProtectConst: true,
	}
}

// ConfigFromEnv reads a Config from REBIND_* environment variables.
func ConfigFromEnv() (config Config, err error) {
	if err = env.Parse(&config); err != nil {
		err = errors.Wrap(err, "failed to parse rebind config from environment")
	}
	return
}
