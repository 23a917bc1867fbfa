package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gammadia/kubeagents/pipeline"
	"github.com/gammadia/kubeagents/provisioner/kubernetes"
	"github.com/gammadia/kubeagents/server/flags"
	"github.com/gammadia/kubeagents/server/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

// Global context for shutdown cascading. When cancel() is called (from signal handler),
// all goroutines watching ctx.Done() begin their shutdown sequence.
var ctx, cancel = context.WithCancel(context.Background())

// wg tracks the main goroutines: scheduler, gRPC server and admin server.
// main() blocks on wg.Wait() and only exits when they are all done.
var wg sync.WaitGroup

func main() {
	flags.Parse(os.Args)

	// Setup logger first as this will be used to report progress of the rest of the setup
	if err := log.Init(); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, err))
		os.Exit(1)
	}
	log.Info("kubeagents server starting up...", "version", version, "commit", commit)

	// Setup network listener
	lis, err := net.Listen("tcp", viper.GetString(flags.Listen))
	if err != nil {
		log.Error("Failed to listen", "error", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	setupInterrupts()

	// Setup metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := errors.Join(pipeline.RegisterMetrics(reg), kubernetes.RegisterMetrics(reg)); err != nil {
		log.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}
	status, err := newStatus(reg)
	if err != nil {
		log.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Setup scheduler
	if err = createScheduler(); err != nil {
		log.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// Scheduler goroutine: Run() blocks in its event loop until Shutdown() is called.
	// A companion goroutine waits for ctx cancellation, then Shutdown() stops the
	// loop and Wait() blocks until every cloud has cleaned up.
	channel, unsubscribe := scheduler.Subscribe()
	go listenEvents(channel, status)

	wg.Add(1)
	go scheduler.Run()
	go func() {
		<-ctx.Done()
		scheduler.Shutdown()
		scheduler.Wait()
		unsubscribe()
		wg.Done()
	}()

	if err := applyDemand(); err != nil {
		log.Error("Failed to apply initial demand", "error", err)
		cancel()
	}

	// Setup gRPC health service, refreshed from the clouds' admission checks
	hs := health.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	go watchHealth(ctx, hs, lo.Map(provisioners, func(p *kubernetes.Provisioner, _ int) feasibilityChecker {
		return p
	}), viper.GetDuration(flags.HealthInterval), viper.GetDuration(flags.OracleTimeout))

	wg.Add(1)
	go func() {
		go func() {
			<-ctx.Done()
			hs.Shutdown()    // reports NOT_SERVING to watchers
			s.GracefulStop() // waits for in-flight RPCs to finish
		}()

		log.Info("Server listening", "address", lis.Addr())
		if err := s.Serve(lis); err != nil {
			log.Error("Failed to serve", "error", err)
			os.Exit(1)
		}
		wg.Done()
	}()

	// Admin server: metrics, node list and demand updates
	if address := viper.GetString(flags.MetricsListen); address != "" {
		admin := &http.Server{Addr: address, Handler: newAdminHandler(scheduler, reg)}

		wg.Add(1)
		go func() {
			go func() {
				<-ctx.Done()
				if err := admin.Shutdown(context.Background()); err != nil {
					log.Warn("Failed to shut down admin server", "error", err)
				}
			}()

			log.Info("Admin server listening", "address", address)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Failed to serve admin", "error", err)
				os.Exit(1)
			}
			wg.Done()
		}()
	}

	// Block until every goroutine above has finished.
	wg.Wait()
	log.Info("Shutdown completed. Bye!")
}

// setupInterrupts handles SIGINT and SIGTERM with a double-tap pattern:
// - First signal: calls cancel() which cascades shutdown through ctx.Done() to all goroutines
// - Second signal: forces immediate exit (in case graceful shutdown hangs)
func setupInterrupts() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		log.Info("Shutdown signal received, attempting graceful shutdown")
		cancel()
		<-sig
		log.Warn("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()
}
