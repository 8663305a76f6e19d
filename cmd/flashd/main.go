package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"flashstake/config"
	"flashstake/native/flash"
	"flashstake/native/strategy"
	"flashstake/observability/logging"
	"flashstake/observability/otel"
	"flashstake/rpc"
	"flashstake/storage"
	"flashstake/token"
)

const rpcTokenEnv = "FLASH_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FLASH_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var logOpts *logging.Options
	if strings.TrimSpace(cfg.LogFile) != "" {
		logOpts = &logging.Options{
			FilePath:   cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		}
	}
	logger := logging.Setup("flashd", env, logOpts)

	if strings.TrimSpace(cfg.OTELEndpoint) != "" {
		shutdown, err := otel.Init(context.Background(), otel.Config{
			ServiceName: "flashd",
			Environment: env,
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    cfg.OTELInsecure,
			Traces:      true,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	protocolAddr, err := config.ParseAddress(cfg.ProtocolAddress, "ProtocolAddress")
	if err != nil {
		logger.Error("Invalid protocol address", slog.Any("error", err))
		os.Exit(1)
	}
	ownerAddr, err := config.ParseAddress(cfg.OwnerAddress, "OwnerAddress")
	if err != nil {
		logger.Error("Invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}

	tokens := token.NewFactory()
	nfts := token.NewNFTRegistry(protocolAddr)
	engine := flash.NewEngine(protocolAddr, ownerAddr, tokens, nfts)
	engine.SetState(flash.NewStoreLedger(db))

	if cfg.MintFeeBps > 0 {
		feeRecipient, err := config.ParseAddress(cfg.MintFeeRecipient, "MintFeeRecipient")
		if err != nil {
			logger.Error("Invalid mint fee recipient", slog.Any("error", err))
			os.Exit(1)
		}
		if err := engine.SetMintFeeInfo(ownerAddr, feeRecipient, cfg.MintFeeBps); err != nil {
			logger.Error("Failed to configure mint fee", slog.Any("error", err))
			os.Exit(1)
		}
	}

	for i, sc := range cfg.Strategies {
		vaultAddr, err := config.ParseAddress(sc.Address, fmt.Sprintf("Strategies[%d].Address", i))
		if err != nil {
			logger.Error("Invalid strategy address", slog.Any("error", err))
			os.Exit(1)
		}
		principal := tokens.Create(sc.PrincipalName, sc.PrincipalSymbol, token.FaucetAddress(vaultAddr))
		vault := strategy.NewVault(vaultAddr, ownerAddr, protocolAddr, principal)
		record, err := engine.RegisterStrategy(vaultAddr, vault, principal.Address(), sc.FTokenName, sc.FTokenSymbol)
		if errors.Is(err, flash.ErrStrategyAlreadyRegistered) {
			// A prior run persisted this strategy; rebind the fresh vault to
			// the stored record instead of failing the boot.
			record, err = engine.AttachStrategy(vaultAddr, vault, sc.FTokenName, sc.FTokenSymbol)
		}
		if err != nil {
			logger.Error("Failed to register strategy", slog.String("strategy", vaultAddr.Hex()), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Registered strategy",
			slog.String("strategy", record.Strategy.Hex()),
			slog.String("principal", record.PrincipalAsset.Hex()),
			slog.String("fToken", record.FToken.Hex()),
		)
	}

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = strings.TrimSpace(cfg.RPCAuthToken)
	}
	server := rpc.NewServer(engine, tokens, authToken)
	engine.SetEmitter(server.Hub())

	logger.Info("Starting flash node",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("data", cfg.DataDir),
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
