package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/wiener/internal/provider"
	coreGrpc "github.com/msto63/wiener/pkg/core/grpc"
	"github.com/msto63/wiener/pkg/core/discovery"
	"github.com/msto63/wiener/pkg/core/logging"
	"github.com/msto63/wiener/pkg/core/registration"
)

var (
	providerType       string
	providerName       string
	providerPort       int
	providerAdvertise  string
	providerController string
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Run operation providers",
}

var providerServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the echo operations over gRPC and announce them",
	Long: `Serve the echo, say and move operations over gRPC and announce the
provider to a running orchestrator. The announcement is refreshed by
heartbeats and withdrawn on shutdown.

Example:
  wiener provider serve --type speech --name voice-1 --port 9301`,
	RunE: runProviderServe,
}

func init() {
	rootCmd.AddCommand(providerCmd)
	providerCmd.AddCommand(providerServeCmd)

	f := providerServeCmd.Flags()
	f.StringVar(&providerType, "type", "", "provider type (default from config)")
	f.StringVar(&providerName, "name", "", "provider name")
	f.IntVar(&providerPort, "port", 0, "gRPC port (default from config)")
	f.StringVar(&providerAdvertise, "advertise", "", "address announced to the orchestrator")
	f.StringVar(&providerController, "controller", "", "control API of the orchestrator")
}

func runProviderServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("could not load config", err)
		return err
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}
	pc := cfg.Provider
	if providerType != "" {
		pc.Type = providerType
	}
	if providerName != "" {
		pc.Name = providerName
	}
	if providerPort != 0 {
		pc.Port = providerPort
	}
	if providerController != "" {
		pc.Controller = providerController
	}
	advertise := providerAdvertise
	if advertise == "" {
		advertise = pc.Host
	}
	logger := logging.New("wiener-provider")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops := provider.EchoOperations()
	svc := provider.NewService(pc.Type, pc.Name, ops)

	grpcCfg := coreGrpc.DefaultServerConfig()
	grpcCfg.Port = pc.Port
	srv := coreGrpc.NewServer(grpcCfg)
	provider.RegisterProviderServer(srv.GRPCServer(), svc)
	if err := srv.StartAsync(); err != nil {
		printError("could not start provider", err)
		return err
	}

	client := discovery.NewHTTPClient(pc.Controller)
	defer client.Close()
	reg, err := registration.Announce(ctx, client, registration.Config{
		Type:       pc.Type,
		Name:       pc.Name,
		Address:    advertise,
		Port:       srv.Port(),
		Operations: ops.Names(),
		Heartbeat:  pc.Heartbeat.Duration,
	})
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Stop(stopCtx)
		cancel()
		printError("could not announce provider", err)
		return err
	}
	fmt.Printf("provider %s (%s) serving %v on %s\n", reg.ProviderID(), pc.Type, ops.Names(), srv.Address())

	<-ctx.Done()
	logger.Info("Shutting down provider")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.Deregister(stopCtx); err != nil {
		logger.Warn("Deregistration failed", "error", err)
	}
	srv.Stop(stopCtx)
	return nil
}
