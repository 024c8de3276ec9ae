// DappForge API Server
// AI-assisted dApp scaffolding: prompt in, audited and tested contracts out.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dappforge/internal/ai"
	"dappforge/internal/api"
	"dappforge/internal/auth"
	"dappforge/internal/codegen"
	"dappforge/internal/config"
	"dappforge/internal/deploy"
	"dappforge/internal/fixer"
	"dappforge/internal/logging"
	"dappforge/internal/pipeline"
	"dappforge/internal/plan"
	"dappforge/internal/publish"
	"dappforge/internal/secscan"
	"dappforge/internal/solc"
	"dappforge/internal/store"
	"dappforge/internal/testrunner"
	"dappforge/internal/ws"
)

func main() {
	logging.Init()
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.L().Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	databaseURL := cfg.DatabaseURL
	if databaseURL == "" {
		databaseURL = "dappforge.db"
		logging.L().Warn("DATABASE_URL not set, using local SQLite file", zap.String("path", databaseURL))
	}
	st, err := store.Open(databaseURL)
	if err != nil {
		logging.L().Fatal("failed to open store", zap.Error(err))
	}

	router := ai.NewRouter(cfg.AnthropicAPIKey, cfg.OpenAIAPIKey, ai.Provider(cfg.DefaultProvider))

	sourceCache := solc.NewSourceCache(cfg.RedisURL, cfg.OpenZeppelinTag)
	compiler := solc.NewCompiler(cfg.SolcPath, sourceCache)

	orchestrator := pipeline.NewOrchestrator(
		codegen.NewGenerator(router),
		compiler,
		secscan.New(),
		newTestRunner(cfg),
		fixer.New(router),
	)

	handler := api.NewHandler(
		st,
		auth.NewService(cfg.JWTSecret),
		plan.NewClarifier(router),
		orchestrator,
		compiler,
		deploy.NewDeployer(cfg.ChainRPCURL),
		publish.NewGitPublisher(context.Background(), cfg.GitHubToken),
		publish.NewHostingPublisher(cfg.HostingAPIURL, cfg.HostingToken),
		ws.NewHub(),
	)

	engine := api.NewRouter(handler, api.RouterOptions{
		RequestsPerMinute: 120,
		RateBurst:         30,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // build streams stay open for the full pipeline run
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.L().Info("dappforge server starting", zap.String("addr", cfg.ListenAddr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.L().Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.L().Error("forced shutdown", zap.Error(err))
	}
}

// newTestRunner prefers the Docker sandbox and falls back to direct
// process execution when no daemon is reachable.
func newTestRunner(cfg *config.Config) *testrunner.Runner {
	opts := []testrunner.Option{
		testrunner.WithTimeout(cfg.TestRunTimeout),
		testrunner.WithSolidityVersion(cfg.SolcVersion),
	}

	ds, err := testrunner.NewDockerSandbox(cfg.DockerHost, cfg.HardhatImage, cfg.SandboxMemoryMB)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = ds.Ping(ctx); err == nil {
			return testrunner.NewRunner(ds, cfg.SandboxRootDir, opts...)
		}
	}

	logging.L().Warn("docker sandbox unavailable, running tests in-process", zap.Error(err))
	return testrunner.NewRunner(testrunner.NewProcessSandbox(), cfg.SandboxRootDir, opts...)
}
