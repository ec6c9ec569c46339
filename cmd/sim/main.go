package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"

	"main/internal/histdata"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/sim"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	outDir := flag.String("out", ".", "Directory for report output")
	journalPath := flag.String("journal", "", "Record all bus traffic to this file (overrides config)")
	profile := flag.Bool("profile", false, "Enable pyroscope profiling")
	profileAddr := flag.String("profile-addr", "http://localhost:4040", "Pyroscope server address")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *profile {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "marketsim",
			ServerAddress:   *profileAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *journalPath != "" {
		cfg.Journal = *journalPath
	}

	series, err := loadSeries(cfg)
	if err != nil {
		log.Fatalf("series load failed: %v", err)
	}

	s, err := sim.New(cfg, series)
	if err != nil {
		log.Fatalf("wiring failed: %v", err)
	}
	result, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	if err := writeReports(*outDir, result); err != nil {
		log.Fatalf("report write failed: %v", err)
	}
	fmt.Printf("done: %d trades, %d rejections, %d stop-losses, total value %s\n",
		result.Report.TradeCount, result.Report.RejectedCount,
		result.Report.StopLossCount, result.Report.TotalValue)
}

func loadSeries(cfg ops.Loaded) (map[string][]schema.PriceBar, error) {
	switch cfg.Data.Source {
	case "", "csv":
		dir := cfg.Data.CSVDir
		if dir == "" {
			dir = "data"
		}
		return histdata.LoadDir(dir, cfg.Registry)
	case "postgres":
		dsn := cfg.Data.PostgresDSN
		if env := os.Getenv("POSTGRES_DSN"); env != "" {
			dsn = env
		}
		store, err := histdata.Open(dsn)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load(cfg.Registry.Symbols())
	default:
		return nil, fmt.Errorf("unknown data source: %s", cfg.Data.Source)
	}
}

func writeReports(dir string, result sim.Result) error {
	if err := writeDailyPnL(filepath.Join(dir, "daily_pnl.json"), result); err != nil {
		return err
	}
	return writeTrades(filepath.Join(dir, "trades_history.csv"), result)
}

func writeDailyPnL(path string, result sim.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeTrades(path string, result sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"day", "trader", "symbol", "side", "quantity", "price", "commission"}); err != nil {
		return err
	}
	for _, trade := range result.Report.Trades {
		record := []string{
			string(trade.Day),
			trade.TraderID,
			trade.Symbol,
			trade.Side.String(),
			strconv.FormatInt(trade.Quantity, 10),
			trade.Price.String(),
			trade.Commission.String(),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
