package domain

import "github.com/shopspring/decimal"

// BarStatus classifies a bar for matching purposes.
type BarStatus string

const (
	BarOK        BarStatus = "OK"
	BarLimitUp   BarStatus = "LIMIT_UP"
	BarLimitDown BarStatus = "LIMIT_DOWN"
	BarError     BarStatus = "ERROR"
)

// Bar is the OHLCV envelope for one instrument on one trading timestamp.
// It is only valid for the bar period it was built for.
type Bar struct {
	Instrument Instrument
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     int64
	LimitUp    decimal.Decimal
	LimitDown  decimal.Decimal
	Status     BarStatus
	IsNaN      bool
}

// CurrentBarClose is a deal price decider that matches at the current bar's close.
func CurrentBarClose(bar Bar) decimal.Decimal {
	return bar.Close
}

// NextBarOpen is a deal price decider that matches at the next bar's open.
func NextBarOpen(bar Bar) decimal.Decimal {
	return bar.Open
}
