package backtest

import (
	"math"
	"time"

	"abquant/internal/model"
	"abquant/internal/model/enum"

	"github.com/shopspring/decimal"
)

// DailyResult is the mark-to-market outcome of one trading day.
type DailyResult struct {
	Date       time.Time
	ClosePrice decimal.Decimal
	PreClose   decimal.Decimal
	Trades     []model.Trade
	TradeCount int

	StartPos   decimal.Decimal
	EndPos     decimal.Decimal
	Turnover   decimal.Decimal
	Commission decimal.Decimal
	Slippage   decimal.Decimal
	TradingPnl decimal.Decimal
	HoldingPnl decimal.Decimal
	TotalPnl   decimal.Decimal
	NetPnl     decimal.Decimal
}

// calculate marks the day's trades and carried position to the close.
func (d *DailyResult) calculate(preClose, startPos, size, rate, slippage decimal.Decimal) {
	if preClose.IsPositive() {
		d.PreClose = preClose
	} else {
		d.PreClose = d.ClosePrice
	}
	d.StartPos = startPos
	d.EndPos = startPos
	d.HoldingPnl = startPos.Mul(d.ClosePrice.Sub(d.PreClose)).Mul(size)
	d.TradeCount = len(d.Trades)
	d.TradingPnl, d.Turnover, d.Commission, d.Slippage = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero

	for _, tr := range d.Trades {
		change := tr.Volume
		if tr.Direction != enum.DirectionLong {
			change = change.Neg()
		}
		d.EndPos = d.EndPos.Add(change)

		turnover := tr.Volume.Mul(size).Mul(tr.Price)
		d.TradingPnl = d.TradingPnl.Add(change.Mul(d.ClosePrice.Sub(tr.Price)).Mul(size))
		d.Slippage = d.Slippage.Add(tr.Volume.Mul(size).Mul(slippage))
		d.Turnover = d.Turnover.Add(turnover)
		d.Commission = d.Commission.Add(turnover.Mul(rate))
	}

	d.TotalPnl = d.TradingPnl.Add(d.HoldingPnl)
	d.NetPnl = d.TotalPnl.Sub(d.Commission).Sub(d.Slippage)
}

// Statistics summarises a run.
type Statistics struct {
	StartDate    time.Time
	EndDate      time.Time
	TotalDays    int
	ProfitDays   int
	LossDays     int
	Capital      float64
	EndBalance   float64
	MaxDrawdown  float64
	MaxDdPercent float64 // negative, percent of the running high

	TotalNetPnl     float64
	TotalCommission float64
	TotalSlippage   float64
	TotalTurnover   float64
	TotalTradeCount int

	TotalReturn  float64 // percent
	AnnualReturn float64 // percent
	DailyReturn  float64 // mean, percent
	ReturnStd    float64 // percent
	SharpeRatio  float64
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// updateDailyClose records b.Close as the latest close of its day.
func (e *Engine) updateDailyClose(b model.Bar) {
	day := dayOf(b.Datetime)
	if n := len(e.daily); n > 0 && e.daily[n-1].Date.Equal(day) {
		e.daily[n-1].ClosePrice = b.Close
		return
	}
	e.daily = append(e.daily, &DailyResult{Date: day, ClosePrice: b.Close})
}

// CalculateResult assigns trades to days and marks each day to market.
func (e *Engine) CalculateResult() []DailyResult {
	if len(e.daily) == 0 {
		return nil
	}
	index := make(map[time.Time]*DailyResult, len(e.daily))
	for _, d := range e.daily {
		d.Trades = d.Trades[:0]
		index[d.Date] = d
	}
	for _, tr := range e.trades {
		if d, ok := index[dayOf(tr.Datetime)]; ok {
			d.Trades = append(d.Trades, tr)
		}
	}

	var (
		size     = decimal.NewFromFloat(e.params.Size)
		rate     = decimal.NewFromFloat(e.params.Rate)
		slippage = decimal.NewFromFloat(e.params.Slippage)
		preClose = decimal.Zero
		startPos = decimal.Zero
		out      = make([]DailyResult, 0, len(e.daily))
	)
	for _, d := range e.daily {
		d.calculate(preClose, startPos, size, rate, slippage)
		preClose, startPos = d.ClosePrice, d.EndPos
		out = append(out, *d)
	}
	return out
}

// CalculateStatistics derives the run summary from daily results.
func (e *Engine) CalculateStatistics(results []DailyResult) Statistics {
	capital := e.params.Capital
	st := Statistics{Capital: capital, EndBalance: capital}
	if len(results) == 0 {
		return st
	}

	st.StartDate = results[0].Date
	st.EndDate = results[len(results)-1].Date
	st.TotalDays = len(results)

	var (
		balance   = capital
		high      = capital
		returns   = make([]float64, 0, len(results))
		annualDay = float64(e.params.AnnualDays)
	)
	for _, d := range results {
		net := d.NetPnl.InexactFloat64()
		prev := balance
		balance += net
		high = math.Max(high, balance)

		if dd := balance - high; dd < st.MaxDrawdown {
			st.MaxDrawdown = dd
		}
		if high > 0 {
			if ddp := (balance - high) / high * 100; ddp < st.MaxDdPercent {
				st.MaxDdPercent = ddp
			}
		}
		if prev > 0 {
			returns = append(returns, (balance/prev-1)*100)
		} else {
			returns = append(returns, 0)
		}

		switch {
		case net > 0:
			st.ProfitDays++
		case net < 0:
			st.LossDays++
		}
		st.TotalNetPnl += net
		st.TotalCommission += d.Commission.InexactFloat64()
		st.TotalSlippage += d.Slippage.InexactFloat64()
		st.TotalTurnover += d.Turnover.InexactFloat64()
		st.TotalTradeCount += d.TradeCount
	}

	st.EndBalance = balance
	if capital > 0 {
		st.TotalReturn = (balance/capital - 1) * 100
	}
	st.AnnualReturn = st.TotalReturn / float64(st.TotalDays) * annualDay
	st.DailyReturn, st.ReturnStd = meanStd(returns)
	if st.ReturnStd > 0 {
		dailyRiskFree := e.params.RiskFree / annualDay * 100
		st.SharpeRatio = (st.DailyReturn - dailyRiskFree) / st.ReturnStd * math.Sqrt(annualDay)
	}
	return st
}

// meanStd returns the mean and sample standard deviation of xs.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}
