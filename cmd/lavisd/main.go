// Command lavisd is the Cognitive Core's process entry point: it loads
// configuration, wires every component (capture, actuator, memory,
// persistence, cold storage, skills, scheduler, reasoning loop), and serves
// the optional HTTP boundary, mirroring cmd/agentd/main.go's top-to-bottom
// wiring shape and cmd/orchestrator/main.go's signal.NotifyContext
// graceful-shutdown idiom.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"lavis/internal/actuator"
	"lavis/internal/capture"
	"lavis/internal/coldstorage"
	"lavis/internal/config"
	"lavis/internal/httpapi"
	"lavis/internal/llm/providers"
	"lavis/internal/memory"
	"lavis/internal/observability"
	"lavis/internal/persistence"
	"lavis/internal/persistence/memstore"
	"lavis/internal/persistence/postgres"
	"lavis/internal/reasoning"
	"lavis/internal/reasoning/prompts"
	"lavis/internal/scheduler"
	"lavis/internal/skills"
	"lavis/internal/tools"
	"lavis/internal/tools/cli"
)

const maintenanceInterval = 10 * time.Minute

func main() {
	observability.InitLogger("lavis.log", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.OTel)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("lavisd exited")
	}
}

func run(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpClient := observability.NewHTTPClient(nil)
	chat, err := providers.Build(cfg, httpClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	store, err := buildStore(ctx, cfg.Persistence)
	if err != nil {
		return fmt.Errorf("build persistence store: %w", err)
	}
	defer store.Close()

	cold, err := buildColdStorage(ctx, cfg.ColdStorage)
	if err != nil {
		return fmt.Errorf("build cold storage: %w", err)
	}

	shellExec := cli.NewExecutor(cfg.Reasoning.ToolWaitDefault)
	act := actuator.NewMacOSActuator(shellExec, cfg.Capture.ScreenWidth, cfg.Capture.ScreenHeight, cfg.Reasoning.ToolWaitDefault)
	perceiver := capture.NewMacOSPerceiver(shellExec, "", cfg.Reasoning.ToolWaitDefault)
	capturer := capture.NewDedupCapturer(perceiver, cfg.Capture.DedupThreshold, cfg.Capture.DownscaleWidth, cfg.Capture.DownscaleHeight)

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, act, capturer); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}

	loader, err := skills.NewLoader(cfg.Skills.Dir)
	if err != nil {
		return fmt.Errorf("build skills loader: %w", err)
	}
	if err := loader.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("initial skills load had errors; continuing with what parsed")
	}
	execCtx := skills.NewExecutionContext()
	skillsSvc := skills.NewService(loader, store, execCtx, shellExec, cfg.Reasoning.ToolWaitDefault)

	invalidator, err := skills.NewInvalidator(cfg.Skills.RedisAddr, loader)
	if err != nil {
		log.Warn().Err(err).Msg("skills invalidator unavailable; hot reload stays local-only")
	} else if invalidator != nil {
		skillsSvc.SetInvalidator(invalidator)
		go invalidator.Listen(ctx)
		defer invalidator.Close()
	}

	registrar := skills.NewRegistrar(registry, skillsSvc)
	if errs := registrar.Sync(); len(errs) > 0 {
		for _, e := range errs {
			log.Warn().Err(e).Msg("skill tool registration error")
		}
	}
	if cfg.Skills.HotReloadSeconds > 0 {
		go loader.WatchReload(ctx, time.Duration(cfg.Skills.HotReloadSeconds)*time.Second)
	}

	conv := memory.New(cfg.Memory.MaxKeepLastMessages, cfg.Memory.KeepImageCount)
	compactor := memory.NewVisualCompactor(cold, memory.DefaultExceptionFramePattern)
	mem := memory.NewManager(store, conv, compactor, cold, chat, cfg.Memory)

	loop := reasoning.New(chat, resolveModel(cfg), prompts.DefaultSystemPrompt, capturer, registry, mem, execCtx, cfg.Reasoning)
	skillsSvc.SetAgentRunner(loop)

	sched := scheduler.New(store, loop, shellExec, cfg.Scheduler)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	go runMaintenance(ctx, mem, sched)

	server := httpapi.NewServer(loop, mem, sched, skillsSvc, capturer, chat, resolveModel(cfg))
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("lavisd listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// resolveModel picks the model name the reasoning loop passes on every
// Chat call: the top-level LLM.Model override when it is set, otherwise
// the active provider's own model field.
func resolveModel(cfg config.Config) string {
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model
	}
	switch cfg.LLM.Provider {
	case "openai", "local":
		return cfg.LLM.OpenAI.Model
	case "google":
		return cfg.LLM.Google.Model
	default:
		return cfg.LLM.Anthropic.Model
	}
}

// buildStore selects the persistence backend: "postgres" opens a pooled
// connection and runs the idempotent schema migration; anything else
// (including the empty default) falls back to the in-memory store, the
// zero-dependency option for local development.
func buildStore(ctx context.Context, cfg config.PersistenceConfig) (persistence.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return postgres.Open(ctx, cfg.DSN)
	default:
		return memstore.New(), nil
	}
}

// buildColdStorage selects the ColdStorage backend.
func buildColdStorage(ctx context.Context, cfg config.ColdStorageConfig) (coldstorage.ColdStorage, error) {
	switch cfg.Backend {
	case "s3":
		return coldstorage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix)
	default:
		root := cfg.FSRoot
		if root == "" {
			root = "./data/coldstorage"
		}
		return coldstorage.NewFSStore(root)
	}
}

// runMaintenance periodically prunes expired cold-storage blobs, compresses
// the conversation window when it nears its context budget, and trims old
// scheduler run logs. It exits when ctx is cancelled.
func runMaintenance(ctx context.Context, mem *memory.Manager, sched *scheduler.Scheduler) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cleaned, compressed, err := mem.ManageMemory(ctx); err != nil {
				log.Warn().Err(err).Msg("maintenance: memory upkeep failed")
			} else {
				log.Info().Int("images_cleaned", cleaned).Bool("compressed", compressed).Msg("maintenance: memory upkeep ran")
			}
			if err := sched.PruneLogs(ctx); err != nil {
				log.Warn().Err(err).Msg("maintenance: run-log pruning failed")
			}
		}
	}
}
