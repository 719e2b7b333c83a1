package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opipolix/gateway/config"
	"github.com/opipolix/gateway/internal/adapters/clob"
	"github.com/opipolix/gateway/internal/adapters/gamma"
	"github.com/opipolix/gateway/internal/adapters/walletmeta"
	"github.com/opipolix/gateway/internal/application/auth"
	"github.com/opipolix/gateway/internal/application/clobsession"
	"github.com/opipolix/gateway/internal/application/resolver"
	"github.com/opipolix/gateway/internal/application/tpengine"
	"github.com/opipolix/gateway/internal/domain"
	"github.com/opipolix/gateway/internal/httpapi"
	"github.com/opipolix/gateway/internal/ports"
	"github.com/opipolix/gateway/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("gateway starting",
		"clob_host", cfg.CLOBHost,
		"chain_id", cfg.ChainID,
		"listen_addr", cfg.ListenAddr,
	)

	clobClient := clob.NewClient(cfg.CLOBHost)

	// wallet and gamma are plain interface variables so an absent Dome API
	// key yields a true nil interface to the resolver, not a non-nil
	// interface wrapping a nil *walletmeta.Client.
	var wallet ports.WalletMetadata
	if cfg.DomeAPIKey != "" {
		wallet = walletmeta.NewClient(cfg.DomeBaseURL, cfg.DomeAPIKey)
	}
	var gammaMarkets ports.GammaMarkets = gamma.NewClient("")

	st := store.New()
	res := resolver.New(wallet, gammaMarkets, cfg.ChainID)
	credentialDeriver := auth.NewCredentialDeriver(cfg.CLOBHost)

	newSession := func(creds domain.ClobCreds, eoaAddress, funderAddress string) *clobsession.Session {
		inner := clob.NewSession(cfg.CLOBHost, creds, eoaAddress, funderAddress)
		return clobsession.New(inner, clobsession.Signer{Address: eoaAddress, ChainID: cfg.ChainID})
	}

	deps := &httpapi.Deps{
		Store:               st,
		Resolver:            res,
		CredentialDeriver:   credentialDeriver,
		PublicCLOB:          clobClient,
		TPEngine:            tpengine.New(st, newSession, cfg.TPPollSeconds, cfg.TPMaxMinutes),
		NewSession:          newSession,
		ChainID:             cfg.ChainID,
		SessionCookieName:   cfg.SessionCookieName,
		SessionTTL:          cfg.SessionTTL(),
		NonceTTL:            cfg.NonceTTL(),
		AuthRateLimitMax:    cfg.AuthRateLimitMaxRequests,
		AuthRateLimitWindow: cfg.AuthRateLimitWindow(),
	}

	router := httpapi.NewRouter(deps)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "err", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped cleanly")
}

func setupLogger(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
