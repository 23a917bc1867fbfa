package main

import (
	"fmt"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/provisioner/kubernetes"
	"github.com/gammadia/kubeagents/provisioner/local"
	schedulerpkg "github.com/gammadia/kubeagents/scheduler"
	"github.com/gammadia/kubeagents/server/flags"
	"github.com/gammadia/kubeagents/server/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

var scheduler *schedulerpkg.Scheduler

// provisioners are in configuration order, which is the order clouds are
// asked to provision nodes.
var provisioners []*kubernetes.Provisioner

func createScheduler() error {
	clouds, err := cloud.Read(viper.GetString(flags.Config))
	if err != nil {
		return fmt.Errorf("unable to load clouds: %w", err)
	}

	registry := schedulerpkg.NewRegistry(log.Base)
	for _, c := range clouds.Clouds {
		cluster, err := createCluster(c)
		if err != nil {
			return fmt.Errorf("unable to create cluster for cloud '%s': %w", c.Name, err)
		}

		p := kubernetes.New(c, cluster, registry, log.Base)
		registry.SetOnlineProbe(c.Name, p.OnlineProbe())
		provisioners = append(provisioners, p)

		log.Info("Cloud configured", "cloud", c.String(), "templates", len(c.Templates), "instance-cap", c.InstanceCap)
	}

	config := schedulerpkg.Config{
		Logger:                      log.Base,
		MaxNodes:                    viper.GetInt(flags.MaxNodes),
		TickInterval:                viper.GetDuration(flags.TickInterval),
		ProvisioningFailureCooldown: viper.GetDuration(flags.ProvisioningFailureCooldown),
		OracleTimeout:               viper.GetDuration(flags.OracleTimeout),
	}
	if err := schedulerpkg.Validate(config); err != nil {
		return fmt.Errorf("invalid scheduler config: %w", err)
	}

	scheduler = schedulerpkg.New(lo.Map(provisioners, func(p *kubernetes.Provisioner, _ int) schedulerpkg.Cloud {
		return p
	}), config)

	return nil
}

func createCluster(c cloud.Cloud) (kubernetes.Cluster, error) {
	switch p := viper.GetString(flags.Provisioner); p {
	case "kubernetes":
		client, err := kubernetes.NewClient(c)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "local":
		return local.New(local.Config{
			Logger:       log.Base.With("cloud", c.Name),
			Namespaces:   []string{c.Namespace},
			StartupDelay: viper.GetDuration(flags.LocalStartupDelay),
			ReadyDelay:   viper.GetDuration(flags.LocalReadyDelay),
		}), nil
	default:
		return nil, fmt.Errorf("unknown provisioner '%s'", p)
	}
}

// applyDemand must be called once the scheduler runs.
func applyDemand() error {
	demand, err := parseDemand(viper.GetStringSlice(flags.Demand))
	if err != nil {
		return err
	}
	for l, count := range demand {
		if err := scheduler.SetDemand(l, count); err != nil {
			return fmt.Errorf("failed to set demand: %w", err)
		}
	}
	return nil
}
