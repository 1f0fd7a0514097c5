package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBenchmarkAccount_OnBar_SeedsPositionOnFirstBar(t *testing.T) {
	account := NewBenchmarkAccount(dec("200000"), "000300.XSHG")
	ctx := TradingContext{BarDict: map[string]Bar{
		"000300.XSHG": {Close: dec("2")},
	}}

	account.OnBar(ctx)

	position := account.Portfolio().Position("000300.XSHG")
	// quantity = floor(200000 / 2) = 100000, spending the whole cash
	// balance as notional; commission = 100000*2*0.0008 = 160 comes out
	// of what's left, which is nothing — cash goes to -160.
	assert.Equal(t, int64(100000), position.Quantity)
	assert.True(t, dec("160").Equal(position.TotalCommission))
	assert.True(t, dec("-160").Equal(account.Portfolio().Cash))
}

func TestBenchmarkAccount_OnBar_MarksToMarketAfterSeeding(t *testing.T) {
	account := NewBenchmarkAccount(dec("200000"), "000300.XSHG")
	account.OnBar(TradingContext{BarDict: map[string]Bar{"000300.XSHG": {Close: dec("2")}}})

	account.OnBar(TradingContext{BarDict: map[string]Bar{"000300.XSHG": {Close: dec("2.5")}}})

	position := account.Portfolio().Position("000300.XSHG")
	assert.True(t, dec("2.5").Equal(position.LastPrice))
	assert.Equal(t, int64(100000), position.Quantity) // seeding never happens again
}

func TestBenchmarkAccount_OnBar_SkipsNaNBar(t *testing.T) {
	account := NewBenchmarkAccount(dec("200000"), "000300.XSHG")
	account.OnBar(TradingContext{BarDict: map[string]Bar{"000300.XSHG": {Close: dec("2"), IsNaN: true}}})

	assert.True(t, account.Portfolio().MarketValue().IsZero())
}

func TestBenchmarkAccount_AfterTrading_RecordsExDividend(t *testing.T) {
	account := NewBenchmarkAccount(dec("200000"), "000300.XSHG")
	account.OnBar(TradingContext{BarDict: map[string]Bar{"000300.XSHG": {Close: dec("2")}}})

	exDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	proxy := newFakeDataProxy()
	proxy.dividends["000300.XSHG"] = DividendSeries{
		BookClosureDate:       exDate,
		DividendCashBeforeTax: dec("1000"),
		RoundLot:              100000,
	}

	account.AfterTrading(TradingContext{TradingDt: exDate, DataProxy: proxy})

	assert.True(t, dec("1000").Equal(account.Portfolio().DividendReceivable))
}

func TestBenchmarkAccount_BeforeTrading_PaysDividendOnPayableDate(t *testing.T) {
	account := NewBenchmarkAccount(dec("200000"), "000300.XSHG")
	account.OnBar(TradingContext{BarDict: map[string]Bar{"000300.XSHG": {Close: dec("2")}}})

	exDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	payDate := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	series := DividendSeries{BookClosureDate: exDate, PayableDate: payDate, DividendCashBeforeTax: dec("1000"), RoundLot: 100000}
	RecordExDividend(account.Portfolio(), "000300.XSHG", 100000, series)

	cashBefore := account.Portfolio().Cash
	account.BeforeTrading(TradingContext{TradingDt: payDate})

	assert.True(t, account.Portfolio().DividendReceivable.IsZero())
	assert.True(t, cashBefore.Add(dec("1000")).Equal(account.Portfolio().Cash))
}

func TestBenchmarkAccount_OrderHandlers_AreNoOps(t *testing.T) {
	account := NewBenchmarkAccount(dec("200000"), "000300.XSHG")
	order := NewOrder("o1", "000300.XSHG", SideBuy, OrderLimit, dec("2"), 100, time.Now())

	assert.NotPanics(t, func() {
		account.OnOrderPendingNew(account, order)
		account.OnOrderCreationReject(account, order)
		account.OnOrderCancellationPass(account, order)
		account.OnOrderUnsolicitedUpdate(account, order)
		account.OnTrade(TradingContext{}, account, order, Trade{})
	})
	assert.True(t, account.Portfolio().Cash.Equal(dec("200000")))
}

func TestBenchmarkAccount_CaptureRestore_RoundTripsPortfolioState(t *testing.T) {
	account := NewBenchmarkAccount(dec("200000"), "000300.XSHG")
	account.OnBar(TradingContext{BarDict: map[string]Bar{"000300.XSHG": {Close: dec("10"), Instrument: Instrument{}}}})

	data, err := account.Capture()
	assert.NoError(t, err)

	restored := NewBenchmarkAccount(dec("0"), "000300.XSHG")
	assert.NoError(t, restored.Restore(data))

	assert.True(t, account.Portfolio().Cash.Equal(restored.Portfolio().Cash))
	assert.Equal(t, account.Portfolio().Positions["000300.XSHG"].Quantity, restored.Portfolio().Positions["000300.XSHG"].Quantity)

	again, err := restored.Capture()
	assert.NoError(t, err)
	assert.Equal(t, data, again)
}
