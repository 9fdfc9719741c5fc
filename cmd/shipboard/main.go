package main

import (
	"context"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"shipboard/internal/app"
	"shipboard/pkg/banner"
	"shipboard/pkg/config"
	"shipboard/pkg/logger"
	"shipboard/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, auxVal, cfgVal, setFlags := config.ParseCommandFlags()

	// Resolve config path (file flag wins over env)
	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])

	// Load effective config (file + env); explicit flags win over both
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		logger.Init()
		shutdown.Abort("failed to load config", err, "")
	}
	logger.InitWithLevel(cfg.Logging.Level)

	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	dbPath := cfg.Storage.DBPath
	if dbPath == "" || setFlags["db"] {
		dbPath = dbVal
	}
	auxPath := cfg.Storage.AuxPath
	if auxPath == "" || setFlags["aux"] {
		auxPath = auxVal
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, addr, dbPath, auxPath, version)
	if err != nil {
		// a half-populated cache or unopened store must never serve traffic
		shutdown.Abort("startup failed", err, dbPath)
	}

	srcs := []string{}
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if _, err := os.Stat(cfgPath); err == nil {
		srcs = append(srcs, "config")
	}
	verStr := version
	if commit != "none" {
		verStr = verStr + " (" + commit + ")"
	}
	banner.Print(addr, dbPath, auxPath, strings.Join(srcs, ", "), verStr)

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server failed", err, dbPath)
	}
	logger.Info("server_stopped")
}
