package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CortezFrazierJr/mantis/internal/clusterstate"
	"github.com/CortezFrazierJr/mantis/internal/provisioner"
	"github.com/CortezFrazierJr/mantis/internal/rulestorage"
	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

func main() {
	clusterID := flag.String("cluster", "", "The cluster id this process scales (required)")
	namespace := flag.String("namespace", "agents", "Kubernetes namespace containing worker-execution agent pods")
	port := flag.Int("port", 8080, "The port to listen on")
	debug := flag.Bool("debug", false, "Enable debug logging")
	authToken := flag.String("auth-token", "", "Bearer token required on operator routes; disabled when empty")

	usagePull := flag.Duration("usage-pull-interval", 30*time.Second, "How often to poll cluster usage")
	ruleRefresh := flag.Duration("rule-refresh-interval", 5*time.Minute, "How often to refresh the rule set from storage")

	ruleBackend := flag.String("rule-storage", "redis", "Rule storage backend: redis or pulumi")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis address, used when -rule-storage=redis")

	infraStack := flag.String("infra-stack", "dev", "Pulumi stack name owning provisioning targets")
	infraWorkDir := flag.String("infra-workdir", ".", "Directory containing the Pulumi program that owns provisioning targets")
	ruleStackWorkDir := flag.String("rule-stack-workdir", ".", "Directory containing the Pulumi program exporting rule outputs, used when -rule-storage=pulumi")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *clusterID == "" {
		log.Fatal().Msg("-cluster is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	authority, err := clusterstate.NewAuthority(*namespace)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build cluster-state authority")
	}

	resolver := provisioner.NewPulumiStackResolver(*infraStack, *infraWorkDir, "")
	prov := provisioner.New(resolver)

	var storage scaler.RuleStorageProvider
	switch *ruleBackend {
	case "redis":
		storage = rulestorage.NewRedisStore(redis.NewClient(&redis.Options{Addr: *redisAddr}))
	case "pulumi":
		storage = rulestorage.NewPulumiStore(*ruleStackWorkDir, "")
	default:
		log.Fatal().Str("backend", *ruleBackend).Msg("unknown -rule-storage value, expected redis or pulumi")
	}
	loader := scaler.NewRuleLoader(storage)

	registry := prometheus.NewRegistry()
	scaler.MustRegisterMetrics(registry)
	metrics := scaler.NewMetrics(scaler.ClusterID(*clusterID))

	cfg := scaler.Config{
		ClusterID:               scaler.ClusterID(*clusterID),
		ScalerPullThreshold:     *usagePull,
		RuleSetRefreshThreshold: *ruleRefresh,
	}
	loop := scaler.NewLoop(cfg, authority, prov, loader, metrics)
	go loop.Start(ctx)

	server := NewServer(*port, loop, cfg.ClusterID, registry, *authToken)

	log.Info().Str("cluster", *clusterID).Int("port", *port).Msg("Starting resource cluster scaler")
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
