package flags

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LogFormat                   = "log-format"
	LogLevel                    = "log-level"
	LogSource                   = "log-source"
	Listen                      = "listen"
	MetricsListen               = "metrics-listen"
	Config                      = "config"
	Demand                      = "demand"
	Provisioner                 = "provisioner"
	MaxNodes                    = "max-nodes"
	TickInterval                = "tick-interval"
	ProvisioningFailureCooldown = "provisioning-failure-cooldown"
	OracleTimeout               = "oracle-timeout"
	HealthInterval              = "health-interval"

	LocalStartupDelay = "local-startup-delay"
	LocalReadyDelay   = "local-ready-delay"
)

// Parse parses the command line and binds it, together with KUBEAGENTS_*
// environment variables, to viper. It exits on invalid flags.
func Parse(args []string) {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)

	// Server
	flags.String(LogFormat, "json", "log format (json, text)")
	flags.String(LogLevel, "INFO", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.String(Listen, ":25374", "gRPC health service listening address")
	flags.String(MetricsListen, ":9090", "metrics and admin HTTP listening address, empty to disable")
	flags.String(Config, "clouds.yaml", "clouds configuration file")
	flags.StringSlice(Demand, nil, "initial demand as label=count, '*' standing for no label constraint")

	// Scheduling
	flags.String(Provisioner, "kubernetes", "cluster backend to use (kubernetes, local)")
	flags.Int(MaxNodes, 0, "maximum number of nodes across all labels, 0 for unlimited")
	flags.Duration(TickInterval, 30*time.Second, "how often demand is re-evaluated")
	flags.Duration(ProvisioningFailureCooldown, 1*time.Minute, "how long to wait before retrying provisioning")
	flags.Duration(OracleTimeout, 10*time.Second, "how long a cloud may take to answer an admission check")
	flags.Duration(HealthInterval, 30*time.Second, "how often cloud health is refreshed")

	// Local
	flags.Duration(LocalStartupDelay, 2*time.Second, "how long simulated pods stay pending")
	flags.Duration(LocalReadyDelay, 3*time.Second, "how long simulated pods take to become ready")

	// Init
	if err := flags.Parse(args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	viper.SetEnvPrefix("kubeagents")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(viper.BindPFlags(flags))
}
