package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var healthCmd = &cobra.Command{
	Use:   "health [CLOUD...]",
	Short: "Query the health of a kubeagents server and of its clouds",

	PersistentPreRunE: noConfig,

	RunE: func(cmd *cobra.Command, args []string) error {
		remote := lo.Must(cmd.Flags().GetString("remote"))

		conn, err := grpc.NewClient(remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("failed to dial gRPC: %w", err)
		}
		defer conn.Close()

		return checkHealth(cmd.Context(), cmd, healthpb.NewHealthClient(conn), args)
	},
}

func init() {
	healthCmd.Flags().String("remote", lo.Must(lo.Coalesce(os.Getenv("KUBEAGENTS_REMOTE"), "localhost:25374")), "the server remote address")
}

type printer interface {
	Printf(format string, args ...any)
}

// checkHealth queries the overall service, then the service of every cloud
// in cloudNames.
func checkHealth(ctx context.Context, out printer, client healthpb.HealthClient, cloudNames []string) error {
	services := append([]string{""}, lo.Map(cloudNames, func(name string, _ int) string {
		return "kubeagents.cloud." + name
	})...)

	unhealthy := 0
	for i, service := range services {
		name := "server"
		if i > 0 {
			name = "cloud " + cloudNames[i-1]
		}

		response, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			out.Printf("%s %s: %s\n", color.HiRedString("✗"), name, err)
			unhealthy++
			continue
		}

		if response.Status == healthpb.HealthCheckResponse_SERVING {
			out.Printf("%s %s: %s\n", color.HiGreenString("✓"), name, response.Status)
		} else {
			out.Printf("%s %s: %s\n", color.HiRedString("✗"), name, response.Status)
			unhealthy++
		}
	}

	if unhealthy > 0 {
		return fmt.Errorf("%d of %d services are not serving", unhealthy, len(services))
	}
	return nil
}
