package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"main/internal/mdg"
	"main/internal/schema"
)

func main() {
	outDir := flag.String("out", "data", "Output directory for CSV files")
	symbols := flag.String("symbols", "AAPL,MSFT,GOOG", "Comma-separated symbol list")
	days := flag.Int("days", 250, "Number of trading days")
	start := flag.String("start", "2024-01-02", "First day (YYYY-MM-DD)")
	seed := flag.Int64("seed", 1, "Random seed")
	basePrice := flag.Float64("base-price", 100, "Starting price")
	drift := flag.Float64("drift", 0.0002, "Mean daily return")
	volatility := flag.Float64("volatility", 0.02, "Daily return stddev")
	baseVolume := flag.Int64("base-volume", 100_000, "Base daily volume")
	flag.Parse()

	startDay, err := schema.ParseDay(*start)
	if err != nil {
		log.Fatalf("bad start day: %v", err)
	}
	gen, err := mdg.NewGenerator(mdg.Config{
		Seed:       *seed,
		Start:      startDay,
		Days:       *days,
		BasePrice:  *basePrice,
		Drift:      *drift,
		Volatility: *volatility,
		BaseVolume: *baseVolume,
	})
	if err != nil {
		log.Fatalf("generator config: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}
	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		bars, err := gen.Series(symbol)
		if err != nil {
			log.Fatalf("generate %s: %v", symbol, err)
		}
		path := filepath.Join(*outDir, symbol+".csv")
		if err := writeCSV(path, bars); err != nil {
			log.Fatalf("write %s: %v", path, err)
		}
		fmt.Printf("%s: %d bars -> %s\n", symbol, len(bars), path)
	}
}

func writeCSV(path string, bars []schema.PriceBar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Date", "Open", "High", "Low", "Close", "Volume"}); err != nil {
		return err
	}
	for _, bar := range bars {
		record := []string{
			string(bar.Day),
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			strconv.FormatInt(bar.Volume, 10),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
