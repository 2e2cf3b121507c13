package main

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/joho/godotenv"

	"ticketchat/internal/app"
	"ticketchat/pkg/config"
	"ticketchat/pkg/logger"
	"ticketchat/pkg/shutdown"
)

// build metadata, set via ldflags during release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()
	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])

	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		shutdown.Abort("load config", err, "")
	}

	// Explicit flags win over env and file.
	if setFlags["addr"] {
		if h, p, err := net.SplitHostPort(addrVal); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = addrVal
		}
	}
	if setFlags["db"] || cfg.Server.DBPath == "" {
		cfg.Server.DBPath = dbVal
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		shutdown.Abort("init logger", err, cfg.Server.DBPath)
	}
	defer logger.Sync()

	if cfg.Security.Encryption.Key == "" {
		shutdown.Abort("encryption key is required",
			errors.New("set security.encryption.key or TICKETCHAT_ENCRYPTION_KEY"),
			cfg.Server.DBPath)
	}

	source := "flags"
	switch {
	case envUsed:
		source = "env"
	case cfg.Server.DBPath != "" && !setFlags["db"]:
		source = "config"
	}

	a, err := app.New(cfg, source, version)
	if err != nil {
		shutdown.Abort("startup", err, cfg.Server.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server", err, cfg.Server.DBPath)
	}
}
