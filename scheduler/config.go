package scheduler

import (
	"errors"
	"log/slog"
	"time"
)

type Config struct {
	Logger *slog.Logger `json:"-"`
	// MaxNodes bounds the number of nodes across every label, 0 meaning unlimited.
	MaxNodes int `json:"max-nodes"`
	// TickInterval is how often demand is re-evaluated when nothing happens.
	TickInterval                time.Duration `json:"tick-interval"`
	ProvisioningFailureCooldown time.Duration `json:"provisioning-failure-cooldown"`
	// OracleTimeout bounds each CanProvision call.
	OracleTimeout time.Duration `json:"oracle-timeout"`
}

func Validate(config Config) error {
	if config.MaxNodes < 0 {
		return errors.New("max-nodes must not be negative")
	}
	if config.TickInterval <= 0 {
		return errors.New("tick-interval must be greater than 0")
	}
	if config.ProvisioningFailureCooldown < 0 {
		return errors.New("provisioning-failure-cooldown must not be negative")
	}
	if config.OracleTimeout <= 0 {
		return errors.New("oracle-timeout must be greater than 0")
	}
	return nil
}
