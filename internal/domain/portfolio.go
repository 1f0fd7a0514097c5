package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Portfolio is the per-account aggregate of cash and positions.
//
// Invariant: after ORDER_PENDING_NEW for a buy, Cash decreases by
// FrozenPrice*Quantity and FrozenCash increases by the same amount —
// the sum Cash+FrozenCash is conserved by that move. A terminal order
// adjusts both back by unfilled*FrozenPrice, and a fill additionally
// adjusts Cash by TradePrice*Amount.
type Portfolio struct {
	Cash               decimal.Decimal
	FrozenCash         decimal.Decimal
	DividendReceivable decimal.Decimal
	TotalCommission    decimal.Decimal
	TotalTax           decimal.Decimal

	YesterdayPortfolioValue decimal.Decimal

	Positions    map[string]*Position
	DividendInfo map[string]*Dividend // instrument ID -> pending dividend
}

// NewPortfolio creates an empty portfolio seeded with starting cash.
func NewPortfolio(startingCash decimal.Decimal) *Portfolio {
	return &Portfolio{
		Cash:         startingCash,
		Positions:    make(map[string]*Position),
		DividendInfo: make(map[string]*Dividend),
	}
}

// Position returns (creating if absent) the position for an instrument.
func (p *Portfolio) Position(instrumentID string) *Position {
	pos, ok := p.Positions[instrumentID]
	if !ok {
		pos = &Position{InstrumentID: instrumentID}
		p.Positions[instrumentID] = pos
	}
	return pos
}

// MarketValue is the sum of every held position's market value.
func (p *Portfolio) MarketValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}

// Value is cash + market value + receivable dividends.
func (p *Portfolio) Value() decimal.Decimal {
	return p.Cash.Add(p.MarketValue()).Add(p.DividendReceivable)
}

// FreezeCash moves amount from Cash to FrozenCash (amount may be
// negative to unfreeze).
func (p *Portfolio) FreezeCash(amount decimal.Decimal) {
	p.FrozenCash = p.FrozenCash.Add(amount)
	p.Cash = p.Cash.Sub(amount)
}

// PrunePositions removes positions with zero quantity, matching the
// housekeeping StockAccount performs every BeforeTrading.
func (p *Portfolio) PrunePositions() {
	for id, pos := range p.Positions {
		if pos.Quantity == 0 {
			delete(p.Positions, id)
		}
	}
}

// portfolioSnapshot is the wire shape Capture/Restore exchange.
// decimal.Decimal already round-trips through encoding/json via its
// own Marshal/UnmarshalJSON, so every field here carries over exactly.
type portfolioSnapshot struct {
	Cash                    decimal.Decimal
	FrozenCash              decimal.Decimal
	DividendReceivable      decimal.Decimal
	TotalCommission         decimal.Decimal
	TotalTax                decimal.Decimal
	YesterdayPortfolioValue decimal.Decimal
	Positions               map[string]*Position
	DividendInfo            map[string]*Dividend
}

// Capture serializes the portfolio's full state — cash, positions, and
// pending dividends — to an opaque byte string suitable for
// persisting and later handing to Restore.
func (p *Portfolio) Capture() ([]byte, error) {
	data, err := json.Marshal(portfolioSnapshot{
		Cash:                    p.Cash,
		FrozenCash:              p.FrozenCash,
		DividendReceivable:      p.DividendReceivable,
		TotalCommission:         p.TotalCommission,
		TotalTax:                p.TotalTax,
		YesterdayPortfolioValue: p.YesterdayPortfolioValue,
		Positions:               p.Positions,
		DividendInfo:            p.DividendInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("domain: capture portfolio: %w", err)
	}
	return data, nil
}

// Restore replaces the portfolio's state with what a prior Capture
// serialized.
func (p *Portfolio) Restore(data []byte) error {
	var snap portfolioSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("domain: restore portfolio: %w", err)
	}
	p.Cash = snap.Cash
	p.FrozenCash = snap.FrozenCash
	p.DividendReceivable = snap.DividendReceivable
	p.TotalCommission = snap.TotalCommission
	p.TotalTax = snap.TotalTax
	p.YesterdayPortfolioValue = snap.YesterdayPortfolioValue
	if snap.Positions == nil {
		snap.Positions = make(map[string]*Position)
	}
	if snap.DividendInfo == nil {
		snap.DividendInfo = make(map[string]*Dividend)
	}
	p.Positions = snap.Positions
	p.DividendInfo = snap.DividendInfo
	return nil
}
