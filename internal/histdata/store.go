package histdata

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/pkg/conn"
)

// PriceBarRecord is the persisted form of a schema.PriceBar.
type PriceBarRecord struct {
	ID     uint            `gorm:"primaryKey"`
	Symbol string          `gorm:"size:32;uniqueIndex:idx_symbol_day"`
	Day    string          `gorm:"size:10;uniqueIndex:idx_symbol_day"`
	Open   decimal.Decimal `gorm:"type:numeric"`
	High   decimal.Decimal `gorm:"type:numeric"`
	Low    decimal.Decimal `gorm:"type:numeric"`
	Close  decimal.Decimal `gorm:"type:numeric"`
	Volume int64
}

// TableName sets the table for gorm.
func (PriceBarRecord) TableName() string { return "price_bars" }

func toRecord(bar schema.PriceBar) PriceBarRecord {
	return PriceBarRecord{
		Symbol: bar.Symbol,
		Day:    string(bar.Day),
		Open:   bar.Open,
		High:   bar.High,
		Low:    bar.Low,
		Close:  bar.Close,
		Volume: bar.Volume,
	}
}

func toBar(record PriceBarRecord) (schema.PriceBar, error) {
	day, err := schema.ParseDay(record.Day)
	if err != nil {
		return schema.PriceBar{}, errors.Wrap(err, record.Symbol)
	}
	return schema.NewPriceBar(record.Symbol, day,
		record.Open, record.High, record.Low, record.Close, record.Volume)
}

// Store persists price bars in Postgres through the shared connection
// client.
type Store struct {
	client *conn.Client
}

// NewStore wraps a connected client.
func NewStore(client *conn.Client) *Store {
	return &Store{client: client}
}

// Migrate creates or updates the price_bars table.
func (s *Store) Migrate() error {
	return s.client.DB().AutoMigrate(&PriceBarRecord{})
}

// Save replaces a symbol's persisted series.
func (s *Store) Save(symbol string, bars []schema.PriceBar) error {
	records := make([]PriceBarRecord, 0, len(bars))
	prev := schema.Day("")
	for _, bar := range bars {
		if bar.Symbol != symbol {
			return errors.New("bar symbol mismatch: " + symbol + " vs " + bar.Symbol)
		}
		if prev != "" && !prev.Before(bar.Day) {
			return errors.Wrap(ErrUnordered, symbol)
		}
		prev = bar.Day
		records = append(records, toRecord(bar))
	}

	db := s.client.DB()
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := tx.Where("symbol = ?", symbol).Delete(&PriceBarRecord{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if len(records) > 0 {
		if err := tx.CreateInBatches(records, 500).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	logs.Infof("histdata: saved %d bars for %s", len(records), symbol)
	return nil
}

// Load fetches the series for the given symbols, ordered by day.
func (s *Store) Load(symbols []string) (map[string][]schema.PriceBar, error) {
	var records []PriceBarRecord
	err := s.client.DB().
		Where("symbol IN ?", symbols).
		Order("symbol, day").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "load price bars")
	}

	series := make(map[string][]schema.PriceBar)
	for _, record := range records {
		bar, err := toBar(record)
		if err != nil {
			return nil, err
		}
		series[record.Symbol] = append(series[record.Symbol], bar)
	}
	if len(series) == 0 {
		return nil, errors.Wrap(ErrNoSeries, "postgres")
	}
	return series, nil
}

// Open connects to Postgres with a DSN and returns a migrated store.
func Open(dsn string) (*Store, error) {
	client, err := conn.New(conn.Option{ConnString: dsn})
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	store := NewStore(client)
	if err := store.Migrate(); err != nil {
		return nil, errors.Wrap(err, "migrate price_bars")
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
