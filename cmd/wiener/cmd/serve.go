package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/orchestrator"
	"github.com/msto63/wiener/internal/planner"
	"github.com/msto63/wiener/internal/provider"
	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/internal/server"
	"github.com/msto63/wiener/internal/store"
	"github.com/msto63/wiener/pkg/core/config"
	"github.com/msto63/wiener/pkg/core/discovery"
	"github.com/msto63/wiener/pkg/core/health"
	"github.com/msto63/wiener/pkg/core/logging"
	"github.com/msto63/wiener/pkg/core/version"
)

var (
	serveWants        []string
	serveScriptsDir   string
	serveRun          []string
	serveGoals        []string
	serveForbid       []string
	serveForbidStates []string
	serveCycle        time.Duration
	serveSleep        bool
	servePort         int
	serveActor        string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator and its control API",
	Long: `Start the orchestrator.

Scripts are loaded from the scripts directory. Providers announce themselves
over the control API; only wanted provider types are connected, plus any
provider serving an operation nobody else serves.

Examples:
  wiener serve --want speech:1 --want motion/arm-left:2
  wiener serve --run patrol --goal 'at(robot, dock)'
  wiener serve --forbid 'move(street)' --cycle 50ms --sleep`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringArrayVar(&serveWants, "want", nil, "wanted provider as type[/name]:priority (repeatable)")
	f.StringVar(&serveScriptsDir, "scripts", "", "script directory")
	f.StringArrayVar(&serveRun, "run", nil, "script to start after boot (repeatable)")
	f.StringArrayVar(&serveGoals, "goal", nil, "goal to submit after boot (repeatable)")
	f.StringArrayVar(&serveForbid, "forbid", nil, "forbidden action pattern (repeatable)")
	f.StringArrayVar(&serveForbidStates, "forbid-state", nil, "forbidden state pattern (repeatable)")
	f.DurationVar(&serveCycle, "cycle", 0, "cycle budget shared by active scripts")
	f.BoolVar(&serveSleep, "sleep", false, "wait out the time slice after each cycle")
	f.IntVar(&servePort, "port", 0, "control API port")
	f.StringVar(&serveActor, "actor", "", "agent name goals are addressed to")
}

// applyServeFlags lets explicitly set flags override file values
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	for _, s := range serveWants {
		w, err := provider.ParseWant(s)
		if err != nil {
			return err
		}
		cfg.Providers = append(cfg.Providers, config.ProviderWant{Type: w.Type, Name: w.Name, Priority: w.Priority})
	}
	if serveScriptsDir != "" {
		cfg.General.ScriptsDir = serveScriptsDir
	}
	if serveActor != "" {
		cfg.General.Actor = serveActor
	}
	cfg.Engine.Forbid = append(cfg.Engine.Forbid, serveForbid...)
	cfg.Engine.ForbidStates = append(cfg.Engine.ForbidStates, serveForbidStates...)
	cfg.Engine.Goals = append(cfg.Engine.Goals, serveGoals...)
	if flags.Changed("cycle") {
		cfg.Engine.CycleBudget = config.Duration{Duration: serveCycle}
	}
	if flags.Changed("sleep") {
		cfg.Engine.Sleep = serveSleep
	}
	if flags.Changed("port") {
		cfg.HTTP.Port = servePort
	}
	return cfg.Validate()
}

func parseTerms(kind string, srcs []string) ([]script.Term, error) {
	out := make([]script.Term, 0, len(srcs))
	for _, s := range srcs {
		t, err := script.ParseTerm(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", kind, s, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("could not load config", err)
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		printError("invalid flags", err)
		return err
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}
	logger := logging.New("wiener")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	forbid, err := parseTerms("action", cfg.Engine.Forbid)
	if err != nil {
		return err
	}
	forbidStates, err := parseTerms("state", cfg.Engine.ForbidStates)
	if err != nil {
		return err
	}
	goals, err := parseTerms("goal", cfg.Engine.Goals)
	if err != nil {
		return err
	}

	// Scripts
	library := script.NewLibrary(nil)
	loader := script.NewLoader(cfg.General.ScriptsDir, library)
	if _, err := loader.LoadAll(); err != nil {
		printError("could not load scripts", err)
		return err
	}
	if cfg.Engine.HotReload {
		if err := loader.StartWatching(ctx); err != nil {
			logger.Warn("Hot reload disabled", "error", err)
		}
		defer loader.Stop()
	}

	// Providers
	table := provider.NewTable(cfg.Engine.InvokeTimeout.Duration)
	for _, w := range cfg.Providers {
		table.Declare(provider.Want{Type: w.Type, Name: w.Name, Priority: w.Priority})
	}
	connector := provider.NewGRPCConnector()
	defer connector.Close()

	opts := orchestrator.Options{
		Scripts:   library,
		Table:     table,
		Policy:    engine.NewPolicy(forbid, forbidStates),
		Connector: connector,
	}

	// Goal history
	var (
		history server.History
		st      *store.Store
	)
	if cfg.Store.Enabled {
		st, err = store.Open(store.Config{Path: cfg.Store.Path})
		if err != nil {
			printError("could not open goal history", err)
			return err
		}
		defer st.Close()
		opts.History = st
		history = st
	}

	// Planner
	var redisAddr string
	switch cfg.Planner.Kind {
	case "pabt":
		opts.Planner = planner.NewPABT(library, planner.PABTConfig{MaxTicks: cfg.Planner.MaxTicks})
	case "redis":
		bridge, err := planner.DialBridge(ctx, planner.BridgeConfig{
			URL:          cfg.Planner.RedisURL,
			GoalKey:      cfg.Planner.GoalKey,
			StateChannel: cfg.Planner.StateChannel,
			PlanKey:      cfg.Planner.PlanKey,
		})
		if err != nil {
			printError("could not reach planner", err)
			return err
		}
		defer bridge.Close()
		opts.Planner = bridge
		if ropts, err := redis.ParseURL(cfg.Planner.RedisURL); err == nil {
			redisAddr = ropts.Addr
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Actor:          cfg.General.Actor,
		CycleBudget:    cfg.Engine.CycleBudget.Duration,
		Sleep:          cfg.Engine.Sleep,
		MaxSteps:       cfg.Engine.MaxSteps,
		UpdateInterval: cfg.Engine.UpdateInterval.Duration,
	}, opts)
	defer orch.Close()

	registry := discovery.NewRegistry()
	defer registry.Close()
	registry.OnEvent(orch.HandleProviderEvent)
	if ttl := cfg.HTTP.ProviderTTL.Duration; ttl > 0 {
		go registry.RunExpiry(ctx, ttl, ttl/3)
	}

	srv := server.New(server.Config{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration,
		Version:      version.Release,
	}, orch, registry, history)
	if st != nil {
		srv.HealthRegistry().Register(health.PingCheck("store", func(ctx context.Context) error {
			_, err := st.Statistics(ctx)
			return err
		}))
	}
	if redisAddr != "" {
		srv.HealthRegistry().Register(health.TCPCheck("planner", redisAddr, 2*time.Second))
	}

	orch.Start(ctx)
	if err := srv.StartAsync(); err != nil {
		printError("could not start control API", err)
		return err
	}

	for _, name := range serveRun {
		if _, err := orch.RunScript(ctx, name); err != nil {
			logger.Error("Could not start script", "script", name, "error", err)
		}
	}
	for _, g := range goals {
		if _, err := orch.SubmitGoal(ctx, g); err != nil {
			logger.Error("Could not submit goal", "goal", g.String(), "error", err)
		}
	}

	logger.Info("Wiener running",
		"version", version.Release,
		"api", srv.Address(),
		"scripts", library.Registry().Len(),
		"planner", cfg.Planner.Kind,
	)

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("Control API shutdown", "error", err)
	}
	return nil
}
