// Cordon - policy gateway for protected call targets
package main

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/logging"
	"github.com/cordonlabs/cordon/internal/server"
	"github.com/cordonlabs/cordon/internal/vault"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting cordon",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"owner", cfg.OwnerAddress,
		"freeze_duration", cfg.FreezeDuration,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Demo target so submissions have somewhere to land in development.
	if cfg.IsDevelopment() {
		demo := common.HexToAddress("0x000000000000000000000000000000000000c0de")
		srv.Mount(demo, vault.NewVault())
		logger.Info("demo vault mounted", "target", demo.Hex())
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
