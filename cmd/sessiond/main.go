// Command sessiond runs a sessionguard Manager behind a small HTTP API, for
// local development and integration testing of clinic front ends.
//
// Endpoints:
//
//	POST   /session           JSON {"user_id":"...","role":"patient","grants":[...]}
//	GET    /session           current session, 404 when signed out
//	POST   /session/activity  record user activity
//	POST   /session/refresh   renew through the JWT identity provider
//	DELETE /session           sign out
//	GET    /protected         guarded route, counts as activity
//	GET    /security          security posture report
//	GET    /metrics           Prometheus scrape endpoint
//
// Run:
//
//	SESSIONGUARD_JWT_SECRET=$(openssl rand -hex 32) go run ./cmd/sessiond
//
// Audit events are written to stdout as JSON lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carenest/sessionguard"
	"github.com/carenest/sessionguard/audit"
	"github.com/carenest/sessionguard/idp/jwtidp"
	"github.com/carenest/sessionguard/internal/config"
	"github.com/carenest/sessionguard/metrics/export/prometheus"
	"github.com/carenest/sessionguard/permission"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, toml, json or .env)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if err := run(*configPath, logger); err != nil {
		logger.Fatalf("sessiond: %v", err)
	}
}

func run(configPath string, logger *log.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer closeStore()

	var idp *jwtidp.Provider
	if cfg.JWTSecret != "" {
		policy, err := permission.NewPolicyFromMap(permission.DefaultRoleCapabilities())
		if err != nil {
			return err
		}
		idp, err = jwtidp.NewProvider(jwtidp.Config{
			SigningMethod: jwtidp.MethodHS256,
			PrivateKey:    []byte(cfg.JWTSecret),
			Issuer:        cfg.JWTIssuer,
			Audience:      cfg.JWTAudience,
			SessionTTL:    cfg.MaxAge,
			TokenTTL:      cfg.TokenTTL,
			Policy:        policy,
		})
		if err != nil {
			return fmt.Errorf("identity provider: %w", err)
		}
	} else {
		logger.Print("sessiond: no JWT secret configured, sessions end at absolute expiry")
	}

	b := sessionguard.New().
		WithConfig(cfg.Manager()).
		WithStore(st).
		WithLogger(logger)
	if idp != nil {
		b = b.WithIdentityProvider(idp)
	}
	if cfg.AuditEnabled {
		b = b.WithAuditSink(audit.NewJSONWriterSink(os.Stdout))
	}
	m, err := b.Build()
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}
	defer m.Close()

	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	metricsHandler, err := prometheus.NewCollector(m).Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newServer(m, idp, logger).routes(metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("sessiond: listening addr=%s store=%s", cfg.ListenAddr, cfg.StoreBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
