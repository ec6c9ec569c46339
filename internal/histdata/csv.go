// Package histdata loads persisted OHLCV history, from per-symbol CSV
// files or from a Postgres store. It only replays what is already
// persisted; acquiring live prices is someone else's job.
package histdata

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

var (
	ErrBadCSV      = errors.New("malformed csv")
	ErrUnordered   = errors.New("csv dates must be strictly increasing")
	ErrNoSeries    = errors.New("no series loaded")
	ErrBadHeader   = errors.New("unexpected csv header")
	expectedHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume"}
)

// LoadDir reads every <SYMBOL>.csv in dir for the registered symbols.
// Files for unregistered symbols are skipped with a log line.
func LoadDir(dir string, registry *schema.Registry) (map[string][]schema.PriceBar, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read data dir")
	}

	series := make(map[string][]schema.PriceBar)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		symbol := strings.TrimSuffix(name, ".csv")
		if !registry.Has(symbol) {
			logs.Debugf("histdata: skipping %s, symbol not registered", name)
			continue
		}
		bars, err := LoadFile(filepath.Join(dir, name), symbol)
		if err != nil {
			return nil, err
		}
		series[symbol] = bars
	}
	if len(series) == 0 {
		return nil, errors.Wrap(ErrNoSeries, dir)
	}
	return series, nil
}

// LoadFile reads one symbol's series from a CSV file with the header
// Date,Open,High,Low,Close,Volume.
func LoadFile(path, symbol string) ([]schema.PriceBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()

	bars, err := parse(f, symbol)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	logs.Debugf("histdata: %s loaded, %d bars", symbol, len(bars))
	return bars, nil
}

func parse(r io.Reader, symbol string) ([]schema.PriceBar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(expectedHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(ErrBadCSV, "read header: "+err.Error())
	}
	for i, want := range expectedHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, errors.Wrap(ErrBadHeader, strings.Join(header, ","))
		}
	}

	var bars []schema.PriceBar
	prev := schema.Day("")
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(ErrBadCSV, "line "+strconv.Itoa(line)+": "+err.Error())
		}
		bar, err := parseRow(record, symbol)
		if err != nil {
			return nil, errors.Wrap(err, "line "+strconv.Itoa(line))
		}
		if prev != "" && !prev.Before(bar.Day) {
			return nil, errors.Wrap(ErrUnordered,
				symbol+": "+string(prev)+" then "+string(bar.Day))
		}
		prev = bar.Day
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, errors.Wrap(ErrBadCSV, symbol+": no rows")
	}
	return bars, nil
}

func parseRow(record []string, symbol string) (schema.PriceBar, error) {
	day, err := schema.ParseDay(strings.TrimSpace(record[0]))
	if err != nil {
		return schema.PriceBar{}, errors.Wrap(ErrBadCSV, "date: "+err.Error())
	}
	prices := make([]decimal.Decimal, 4)
	for i := 0; i < 4; i++ {
		prices[i], err = decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return schema.PriceBar{}, errors.Wrap(ErrBadCSV, expectedHeader[i+1]+": "+err.Error())
		}
	}
	volume, err := strconv.ParseInt(strings.TrimSpace(record[5]), 10, 64)
	if err != nil {
		return schema.PriceBar{}, errors.Wrap(ErrBadCSV, "volume: "+err.Error())
	}
	return schema.NewPriceBar(symbol, day, prices[0], prices[1], prices[2], prices[3], volume)
}
