package paper

import (
	"math/rand"
	"time"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// SymbolConfig describes one simulated instrument.
type SymbolConfig struct {
	Symbol      string  `mapstructure:"symbol"`
	BasePrice   float64 `mapstructure:"base_price"`
	PriceTick   float64 `mapstructure:"price_tick"`
	MinVolume   float64 `mapstructure:"min_volume"`
	SpreadTicks int     `mapstructure:"spread_ticks"`
}

func (c SymbolConfig) contract(gatewayName string) model.Contract {
	return model.Contract{
		GatewayName: gatewayName,
		Symbol:      c.Symbol,
		Exchange:    enum.ExchangePaper,
		Name:        c.Symbol,
		Product:     enum.ProductSpot,
		Size:        decimal.NewFromInt(1),
		PriceTick:   decimal.NewFromFloat(c.PriceTick),
		MinVolume:   decimal.NewFromFloat(c.MinVolume),
	}
}

type feedState struct {
	contract model.Contract
	price    decimal.Decimal
	spread   decimal.Decimal
	volume   decimal.Decimal
	turnover decimal.Decimal
	open     decimal.Decimal
	high     decimal.Decimal
	low      decimal.Decimal
}

// Feed creates synthetic ticks with a seeded random walk per symbol.
type Feed struct {
	gatewayName string
	rng         *rand.Rand
	symbols     map[string]*feedState // ab symbol
}

// NewFeed creates a feed for the configured symbols.
func NewFeed(gatewayName string, seed int64, symbols []SymbolConfig) (*Feed, error) {
	if len(symbols) == 0 {
		return nil, errors.Wrap(exception.ErrGatewayInvalidSetting, "no paper symbols")
	}
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	f := &Feed{
		gatewayName: gatewayName,
		rng:         rand.New(rand.NewSource(seed)),
		symbols:     make(map[string]*feedState, len(symbols)),
	}
	for _, s := range symbols {
		if s.Symbol == "" || s.BasePrice <= 0 || s.PriceTick <= 0 || s.MinVolume <= 0 {
			return nil, errors.Wrapf(exception.ErrGatewayInvalidSetting, "paper symbol: %+v", s)
		}
		spread := s.SpreadTicks
		if spread <= 0 {
			spread = 1
		}
		c := s.contract(gatewayName)
		price := model.RoundTo(decimal.NewFromFloat(s.BasePrice), c.PriceTick)
		f.symbols[c.ABSymbol()] = &feedState{
			contract: c,
			price:    price,
			spread:   c.PriceTick.Mul(decimal.NewFromInt(int64(spread))),
			open:     price,
			high:     price,
			low:      price,
		}
	}
	return f, nil
}

// Contracts returns the contracts of every simulated symbol.
func (f *Feed) Contracts() []model.Contract {
	out := make([]model.Contract, 0, len(f.symbols))
	for _, s := range f.symbols {
		out = append(out, s.contract)
	}
	return out
}

// Next advances the random walk of abSymbol by at most one price tick and
// returns the resulting tick.
func (f *Feed) Next(abSymbol string, now time.Time) (model.Tick, bool) {
	s, ok := f.symbols[abSymbol]
	if !ok {
		return model.Tick{}, false
	}

	step := int64(f.rng.Intn(3) - 1)
	next := s.price.Add(s.contract.PriceTick.Mul(decimal.NewFromInt(step)))
	if next.IsPositive() {
		s.price = next
	}
	lastVolume := s.contract.MinVolume.Mul(decimal.NewFromInt(int64(f.rng.Intn(5) + 1)))
	s.volume = s.volume.Add(lastVolume)
	s.turnover = s.turnover.Add(lastVolume.Mul(s.price))
	s.high = decimal.Max(s.high, s.price)
	s.low = decimal.Min(s.low, s.price)

	tick := model.Tick{
		GatewayName: f.gatewayName,
		Symbol:      s.contract.Symbol,
		Exchange:    s.contract.Exchange,
		Datetime:    now,
		LocalTime:   now,
		Name:        s.contract.Name,
		Volume:      s.volume,
		Turnover:    s.turnover,
		LastPrice:   s.price,
		LastVolume:  lastVolume,
		OpenPrice:   s.open,
		HighPrice:   s.high,
		LowPrice:    s.low,
	}
	for i := 0; i < model.DepthLevels; i++ {
		offset := s.spread.Mul(decimal.NewFromInt(int64(i + 1)))
		size := s.contract.MinVolume.Mul(decimal.NewFromInt(int64(10 * (i + 1))))
		tick.Bids[i] = model.DepthLevel{Price: s.price.Sub(offset), Volume: size}
		tick.Asks[i] = model.DepthLevel{Price: s.price.Add(offset), Volume: size}
	}
	return tick, true
}
