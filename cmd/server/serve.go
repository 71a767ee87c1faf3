package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/houzhh15/spm-agent/cmd/server/internal/api"
	"github.com/houzhh15/spm-agent/cmd/server/internal/audit"
	"github.com/houzhh15/spm-agent/cmd/server/internal/identity"
	"github.com/houzhh15/spm-agent/cmd/server/internal/llm"
	"github.com/houzhh15/spm-agent/cmd/server/internal/roadmap"
	"github.com/houzhh15/spm-agent/cmd/server/internal/services"
	"github.com/houzhh15/spm-agent/cmd/server/internal/store"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	appLogger := log.With("component", "web-server")
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	st, err := store.Open(store.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Debug:        cfg.Log.Level == "debug",
	})
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	appLogger.Info("database ready", "driver", cfg.Database.Driver)

	var auditLogger audit.AuditLogger = audit.NoopAuditLogger{}
	if cfg.Audit.File != "" {
		fileLogger, err := audit.NewFileAuditLogger(cfg.Audit.File)
		if err != nil {
			return err
		}
		defer fileLogger.Close()
		auditLogger = fileLogger
		appLogger.Info("audit log enabled", "file", cfg.Audit.File)
	}

	verifier := identity.NewTokenVerifier(ctx, identity.VerifierConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		JWKSURL:   cfg.Auth.JWKSURL,
		Audience:  cfg.Auth.Audience,
		Leeway:    30 * time.Second,
	})
	directory := identity.NewDirectory(verifier, st, auditLogger, log)

	if cfg.LLM.APIKey == "" {
		appLogger.Warn("GEMINI_API_KEY is not set; roadmap generation will fail")
	}
	client := llm.NewClient(llm.Config{
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		BaseURL:       cfg.LLM.BaseURL,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       cfg.LLM.Timeout,
		StreamTimeout: cfg.LLM.StreamTimeout,
		MaxConcurrent: cfg.LLM.MaxConcurrent,
	}, nil, log.With("component", "llm"))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterDeps{
		Env:            cfg.Server.Env,
		AllowedOrigins: cfg.Security.CORSAllowedOrigins,
		Logger:         log,
		Verifier:       directory,
		Generator:      roadmap.NewGenerator(st, directory, client, auditLogger, log),
		Projects:       services.NewProjectService(st, auditLogger, log),
		Profiles:       directory,
		DB:             st,
	})

	// 不设置 WriteTimeout，SSE 响应可能持续数分钟
	srv := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	appLogger.Info("shutdown signal received, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	appLogger.Info("server shutdown complete")
	return nil
}
