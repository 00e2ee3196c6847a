package history

import (
	"context"
	"time"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const saveBatchSize = 500

// Store persists and serves bars.
type Store interface {
	SaveBars(ctx context.Context, bars []model.Bar) error
	LoadBars(ctx context.Context, req model.HistoryRequest) ([]model.Bar, error)
}

// BarRecord is the bar table row.
type BarRecord struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement"`
	Symbol       string          `gorm:"size:32;uniqueIndex:idx_bar_key,priority:1"`
	Exchange     string          `gorm:"size:16;uniqueIndex:idx_bar_key,priority:2"`
	Interval     string          `gorm:"column:bar_interval;size:8;uniqueIndex:idx_bar_key,priority:3"`
	Datetime     time.Time       `gorm:"uniqueIndex:idx_bar_key,priority:4"`
	Open         decimal.Decimal `gorm:"type:numeric"`
	High         decimal.Decimal `gorm:"type:numeric"`
	Low          decimal.Decimal `gorm:"type:numeric"`
	Close        decimal.Decimal `gorm:"type:numeric"`
	Volume       decimal.Decimal `gorm:"type:numeric"`
	Turnover     decimal.Decimal `gorm:"type:numeric"`
	OpenInterest decimal.Decimal `gorm:"type:numeric"`
}

func (BarRecord) TableName() string { return "bar_data" }

// Overview summarizes the stored range of one series.
type Overview struct {
	Symbol   string
	Exchange string
	Interval string
	Count    int64
	Start    time.Time
	End      time.Time
}

// DB is a gorm backed Store.
type DB struct {
	db *gorm.DB
}

// NewDB migrates the bar table and returns the store.
func NewDB(db *gorm.DB) (*DB, error) {
	if db == nil {
		return nil, exception.ErrNilInstance
	}
	if err := db.AutoMigrate(&BarRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate bar table")
	}
	return &DB{db: db}, nil
}

// SaveBars upserts bars on (symbol, exchange, interval, datetime).
func (s *DB) SaveBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	records := make([]BarRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, toRecord(b))
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "exchange"}, {Name: "bar_interval"}, {Name: "datetime"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"open", "high", "low", "close", "volume", "turnover", "open_interest",
			}),
		}).
		CreateInBatches(records, saveBatchSize).Error
	if err != nil {
		return errors.Wrapf(err, "save %d bars", len(bars))
	}
	return nil
}

// LoadBars returns bars in [req.Start, req.End] ordered by time. A zero End
// means no upper bound.
func (s *DB) LoadBars(ctx context.Context, req model.HistoryRequest) ([]model.Bar, error) {
	q := s.db.WithContext(ctx).
		Where("symbol = ? AND exchange = ? AND bar_interval = ?", req.Symbol, string(req.Exchange), req.Interval.String()).
		Where("datetime >= ?", req.Start.UTC())
	if !req.End.IsZero() {
		q = q.Where("datetime <= ?", req.End.UTC())
	}

	var records []BarRecord
	if err := q.Order("datetime ASC").Find(&records).Error; err != nil {
		return nil, errors.Wrapf(err, "load bars %s", req.ABSymbol())
	}

	bars := make([]model.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, r.toBar())
	}
	return bars, nil
}

// Overview lists every stored series.
func (s *DB) Overview(ctx context.Context) ([]Overview, error) {
	var groups []struct {
		Symbol      string
		Exchange    string
		BarInterval string
		Count       int64
	}
	err := s.db.WithContext(ctx).
		Model(&BarRecord{}).
		Select("symbol, exchange, bar_interval, COUNT(*) AS count").
		Group("symbol, exchange, bar_interval").
		Order("symbol, exchange, bar_interval").
		Scan(&groups).Error
	if err != nil {
		return nil, errors.Wrap(err, "bar overview")
	}

	out := make([]Overview, 0, len(groups))
	for _, g := range groups {
		series := s.db.WithContext(ctx).
			Where("symbol = ? AND exchange = ? AND bar_interval = ?", g.Symbol, g.Exchange, g.BarInterval)
		var first, last BarRecord
		if err := series.Session(&gorm.Session{}).Order("datetime ASC").First(&first).Error; err != nil {
			return nil, errors.Wrap(err, "bar overview start")
		}
		if err := series.Session(&gorm.Session{}).Order("datetime DESC").First(&last).Error; err != nil {
			return nil, errors.Wrap(err, "bar overview end")
		}
		out = append(out, Overview{
			Symbol:   g.Symbol,
			Exchange: g.Exchange,
			Interval: g.BarInterval,
			Count:    g.Count,
			Start:    first.Datetime.UTC(),
			End:      last.Datetime.UTC(),
		})
	}
	return out, nil
}

// DeleteBars removes a whole series and returns the number of rows deleted.
func (s *DB) DeleteBars(ctx context.Context, symbol string, exchange enum.Exchange, interval enum.Interval) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("symbol = ? AND exchange = ? AND bar_interval = ?", symbol, string(exchange), interval.String()).
		Delete(&BarRecord{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete bars")
	}
	return res.RowsAffected, nil
}

func toRecord(b model.Bar) BarRecord {
	return BarRecord{
		Symbol:       b.Symbol,
		Exchange:     string(b.Exchange),
		Interval:     b.Interval.String(),
		Datetime:     b.Datetime.UTC(),
		Open:         b.Open,
		High:         b.High,
		Low:          b.Low,
		Close:        b.Close,
		Volume:       b.Volume,
		Turnover:     b.Turnover,
		OpenInterest: b.OpenInterest,
	}
}

func (r BarRecord) toBar() model.Bar {
	interval, _ := enum.ParseInterval(r.Interval)
	return model.Bar{
		GatewayName:  "DB",
		Symbol:       r.Symbol,
		Exchange:     enum.Exchange(r.Exchange),
		Datetime:     r.Datetime.UTC(),
		Interval:     interval,
		Open:         r.Open,
		High:         r.High,
		Low:          r.Low,
		Close:        r.Close,
		Volume:       r.Volume,
		Turnover:     r.Turnover,
		OpenInterest: r.OpenInterest,
	}
}
