package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/alejandrodnm/backtrader/config"
	"github.com/alejandrodnm/backtrader/internal/adapters/marketdata"
	"github.com/alejandrodnm/backtrader/internal/adapters/report"
	"github.com/alejandrodnm/backtrader/internal/adapters/storage"
	"github.com/alejandrodnm/backtrader/internal/domain"
	"github.com/alejandrodnm/backtrader/internal/simulation"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	dataDir := flag.String("data", "data", "directory of instruments.csv, bars.csv, dividends.csv, splits.csv")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full daily series + trade ledger (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("backtrader starting", "config", *configPath, "data", *dataDir)

	source, err := marketdata.Load(*dataDir)
	if err != nil {
		slog.Error("failed to load market data", "err", err, "dir", *dataDir)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	driverCfg, err := buildDriverConfig(cfg)
	if err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	driver, err := simulation.NewDriver(driverCfg, source, source, source, nil, store, slog.Default())
	if err != nil {
		slog.Error("failed to build driver", "err", err)
		os.Exit(1)
	}

	from, err := cfg.StartDate()
	if err != nil {
		slog.Error("invalid start date", "err", err)
		os.Exit(1)
	}
	to, err := cfg.EndDate()
	if err != nil {
		slog.Error("invalid end date", "err", err)
		os.Exit(1)
	}

	result, err := driver.Run(from, to)
	if err != nil {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	report.NewConsole(*table).Print(result)
	slog.Info("backtrader finished", "days", len(result.DailyPortfolios), "trades", len(result.Trades))
}

func buildDriverConfig(cfg *config.Config) (simulation.Config, error) {
	stockCash, err := cfg.StockStartingCash()
	if err != nil {
		return simulation.Config{}, err
	}
	futureCash, err := cfg.FutureStartingCash()
	if err != nil {
		return simulation.Config{}, err
	}

	accountList := make([]domain.AccountType, 0, len(cfg.Base.AccountList))
	for _, a := range cfg.Base.AccountList {
		accountList = append(accountList, domain.AccountType(a))
	}

	return simulation.Config{
		MatchingType:              simulation.MatchingType(cfg.Base.MatchingType),
		Frequency:                 simulation.Frequency(cfg.Base.Frequency),
		AccountList:               accountList,
		StockStartingCash:         stockCash,
		FutureStartingCash:        futureCash,
		Benchmark:                 cfg.Base.Benchmark,
		HandleSplit:               cfg.Base.HandleSplit,
		T1ExemptInstruments:       cfg.Validator.T1ExemptInstruments,
		BarLimit:                  cfg.Validator.BarLimit,
		CashReturnByStockDelisted: cfg.Validator.CashReturnByStockDelisted,
		VolumePercent:             decimal.NewFromFloat(cfg.Validator.VolumePercent),
		ReplayRate:                rate.Limit(cfg.ReplayRate()),
	}, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
