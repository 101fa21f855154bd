package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/veildata/veil/internal/config"
	"github.com/veildata/veil/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the veil HTTP API",
	Long: `Serve exposes detection and redaction over HTTP: POST /v1/detect,
/v1/redact, and /v1/records, plus pattern and audit queries. Requests
authenticate with an API key (X-Veil-Key header or bearer token) when
keys are configured; without keys every endpoint is open.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8385)")
	rootCmd.AddCommand(serveCmd)
}

// parseAPIKeys returns a map of key -> caller name from VEIL_API_KEYS
// (comma-separated; each entry key or key:name).
func parseAPIKeys(env string) map[string]string {
	m := make(map[string]string)
	if env == "" {
		return m
	}
	for _, part := range strings.Split(env, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := "default"
		if idx := strings.Index(part, ":"); idx > 0 {
			if v := strings.TrimSpace(part[idx+1:]); v != "" {
				name = v
			}
			part = strings.TrimSpace(part[:idx])
		}
		m[part] = name
	}
	return m
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	library, err := buildLibrary(cfg)
	if err != nil {
		return fmt.Errorf("compiling patterns: %w", err)
	}

	store, err := openAuditStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	apiKeys := cfg.ServerAPIKeys
	if len(apiKeys) == 0 {
		apiKeys = parseAPIKeys(os.Getenv("VEIL_API_KEYS"))
	}
	if len(apiKeys) == 0 {
		log.Warn().Msg("no API keys configured, every endpoint is open. Set VEIL_API_KEYS for production.")
	}

	srv := server.NewServer(library,
		server.WithAuditStore(store),
		server.WithAPIKeys(apiKeys),
		server.WithExternalDetectors(buildDetectors(ctx, cfg)...),
		server.WithDefaultStrategy(cfg.Strategy),
		server.WithFields(cfg.Fields),
		server.WithStripHTML(cfg.StripHTML),
		server.WithVerification(cfg.VerifyOutput),
		server.WithRateLimit(server.DefaultGlobalRPS, cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Int("pattern_types", len(library.Types())).
		Bool("audit_sealed", store.Sealed()).
		Bool("auth", len(apiKeys) > 0).
		Msg("veil_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
