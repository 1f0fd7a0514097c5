package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DividendSeries is the corporate-action schedule for a cash dividend,
// as reported by the data proxy.
type DividendSeries struct {
	BookClosureDate       time.Time
	ExDividendDate        time.Time
	PayableDate           time.Time
	DividendCashBeforeTax decimal.Decimal
	RoundLot              int64
}

// PerShare is the cash dividend per share (before tax).
func (s DividendSeries) PerShare() decimal.Decimal {
	if s.RoundLot == 0 {
		return decimal.Zero
	}
	return s.DividendCashBeforeTax.Div(decimal.NewFromInt(s.RoundLot))
}

// Dividend is a pending dividend recorded for a held position on its
// ex-dividend date, and consumed on its payable date.
type Dividend struct {
	InstrumentID     string
	QuantityAtRecord int64
	Series           DividendSeries
}

// Cash is the total cash owed for this dividend.
func (d Dividend) Cash() decimal.Decimal {
	return d.Series.PerShare().Mul(decimal.NewFromInt(d.QuantityAtRecord))
}

// PayDividends consumes any pending dividend on the portfolio whose
// payable date is today, moving its cash from receivable into cash.
// Shared by every account variant's BeforeTrading handler.
func PayDividends(p *Portfolio, tradingDt time.Time) {
	for id, div := range p.DividendInfo {
		if !sameDate(div.Series.PayableDate, tradingDt) {
			continue
		}
		if div.Series.PerShare().IsPositive() && div.QuantityAtRecord > 0 {
			cash := div.Cash()
			p.DividendReceivable = p.DividendReceivable.Sub(cash)
			p.Cash = p.Cash.Add(cash)
		}
		delete(p.DividendInfo, id)
	}
}

// RecordExDividend registers a pending dividend for instrumentID at
// its current position quantity, adding the owed cash to the
// portfolio's receivable balance. Shared by every account variant's
// ex-dividend handling.
func RecordExDividend(p *Portfolio, instrumentID string, quantity int64, series DividendSeries) {
	p.DividendInfo[instrumentID] = &Dividend{InstrumentID: instrumentID, QuantityAtRecord: quantity, Series: series}
	p.DividendReceivable = p.DividendReceivable.Add(series.PerShare().Mul(decimal.NewFromInt(quantity)))
}
