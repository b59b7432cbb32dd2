package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"callyard.app/switchboard/common/id"
	"callyard.app/switchboard/common/logger"
	"callyard.app/switchboard/common/otel"
	"callyard.app/switchboard/core/config"
	"callyard.app/switchboard/internal/ai"
	"callyard.app/switchboard/internal/bus"
	"callyard.app/switchboard/internal/chain"
	"callyard.app/switchboard/internal/correlate"
	"callyard.app/switchboard/internal/dealer"
	"callyard.app/switchboard/internal/ingest"
	"callyard.app/switchboard/internal/media"
	"callyard.app/switchboard/internal/stages/calllog"
	"callyard.app/switchboard/internal/stages/stitcher"
	"callyard.app/switchboard/internal/stages/summary"
	"callyard.app/switchboard/internal/stages/transcribe"
	"callyard.app/switchboard/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "switchboard worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.Group,
		"consumer_name", cfg.Redis.Consumer)

	// Different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.Stream)

	conversations := store.NewConversationStore(redisClient)
	if err := conversations.EnsureIndex(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure conversation index", "error", err)
		os.Exit(1)
	}

	correlationKeys := store.NewCorrelationStore(redisClient)
	correlator := correlate.NewCorrelator(correlationKeys, cfg.Correlation.TTL)
	deduplicator := correlate.NewDeduplicator(conversations, cfg.Correlation.Source)

	var dealers ingest.DealerLookup
	if cfg.Dealers.Enabled() {
		dealers = dealer.NewDirectory(redisClient, &dealer.HTTPFetcher{
			URL:   cfg.Dealers.URL,
			Token: cfg.Dealers.Token,
		}, cfg.Dealers.CacheTTL)
		slog.InfoContext(ctx, "dealer directory enabled", "url", cfg.Dealers.URL)
	}

	var resolver media.Resolver
	if cfg.Media.Enabled() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Media.Region))
		if err != nil {
			slog.ErrorContext(ctx, "failed to load aws config", "error", err)
			os.Exit(1)
		}
		resolver = media.NewS3Resolver(s3.NewFromConfig(awsCfg), cfg.Media.Bucket)
		slog.InfoContext(ctx, "media resolver enabled", "bucket", cfg.Media.Bucket)
	}

	pipelineBus := bus.NewRedis(redisClient)

	registry := chain.NewRegistry()
	registry.Register(calllog.New(conversations))
	if cfg.LeadDB.Enabled() {
		leads, err := stitcher.NewPostgresLeads(ctx, cfg.LeadDB.DSN)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to lead database", "error", err)
			os.Exit(1)
		}
		defer leads.Close()
		registry.Register(stitcher.New(conversations, leads, cfg.LeadDB.LookbackDays))
		slog.InfoContext(ctx, "lead database connected")
	}
	if cfg.OpenAI.Enabled() {
		client := ai.NewOpenAIClient(cfg.OpenAI)
		registry.Register(transcribe.New(conversations, client, client.Vendor()))
		registry.Register(summary.New(conversations, client, client.Vendor()))
	}

	assembler := chain.NewAssembler(pipelineBus, registry)
	var chains []*chain.Chain
	var ingressTopics []string
	for _, definition := range cfg.Chains {
		built, err := assembler.Build(ctx, definition)
		if err != nil {
			slog.ErrorContext(ctx, "failed to build chain", "error", err, "stages", definition)
			os.Exit(1)
		}
		chains = append(chains, built)
		slog.InfoContext(ctx, "chain assembled", "chain_id", built.ID, "stages", definition)
	}
	ingressTopics = append(ingressTopics, chain.DefaultIngressTopic)

	consumer, err := ingest.NewRedisConsumer(redisClient, ingest.ConsumerConfig{
		Stream:       cfg.Redis.Stream,
		Group:        cfg.Redis.Group,
		Consumer:     cfg.Redis.Consumer,
		DLQStream:    cfg.Redis.DLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Redis.MaxAttempts,
		RequeueDelay: cfg.Redis.RequeueDelay,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	processor := ingest.NewProcessor(correlator, deduplicator, conversations, pipelineBus, dealers, resolver, ingest.ProcessorConfig{
		Source:       cfg.Correlation.Source,
		EgressTopics: ingressTopics,
		MediaURLTTL:  cfg.Media.URLTTL,
	})

	w := ingest.NewWorker(consumer, processor, ingest.WorkerConfig{
		MaxAttempts: cfg.Redis.MaxAttempts,
	})

	reclaimer := ingest.NewReclaimer(redisClient, ingest.ReclaimerConfig{
		Stream:    cfg.Redis.Stream,
		Group:     cfg.Redis.Group,
		Consumer:  cfg.Redis.Consumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimer first (quick)
	reclaimer.Stop()

	// Stop worker (may be processing)
	w.Stop()

	// Stop chains last so in-flight conversations drain through them
	for _, c := range chains {
		c.Stop()
	}

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
███████╗██╗    ██╗██████╗     ██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗███████╗██████╗
██╔════╝██║    ██║██╔══██╗    ██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██╔════╝██╔══██╗
███████╗██║ █╗ ██║██████╔╝    ██║ █╗ ██║██║   ██║██████╔╝█████╔╝ █████╗  ██████╔╝
╚════██║██║███╗██║██╔══██╗    ██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██╔══╝  ██╔══██╗
███████║╚███╔███╔╝██████╔╝    ╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗███████╗██║  ██║
╚══════╝ ╚══╝╚══╝ ╚═════╝      ╚═══╝╚═══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`
