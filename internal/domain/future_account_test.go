package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func futuresCtx(proxy DataProxy, bars map[string]Bar) TradingContext {
	return TradingContext{TradingDt: time.Now(), BarDict: bars, DataProxy: proxy}
}

func newFutureProxy() *fakeDataProxy {
	proxy := newFakeDataProxy()
	proxy.instruments["IF2409.CFE"] = Instrument{ID: "IF2409.CFE", ContractMultiplier: 300}
	return proxy
}

func TestFutureAccount_OnOrderPendingNew_FreezesMargin(t *testing.T) {
	account := NewFutureAccount(dec("1000000"), newFutureProxy(), FutureAccountConfig{MarginRate: dec("0.1")})

	order := NewOrder("o1", "IF2409.CFE", SideBuy, OrderLimit, dec("4000"), 2, time.Now())
	account.OnOrderPendingNew(account, order)

	// margin = price * qty * multiplier * rate = 4000*2*300*0.1 = 240000
	assert.True(t, dec("240000").Equal(account.Portfolio().FrozenCash))
	assert.True(t, dec("760000").Equal(account.Portfolio().Cash))
}

func TestFutureAccount_OnTrade_OpensLongPosition(t *testing.T) {
	account := NewFutureAccount(dec("1000000"), newFutureProxy(), FutureAccountConfig{MarginRate: dec("0.1")})

	order := NewOrder("o1", "IF2409.CFE", SideBuy, OrderLimit, dec("4000"), 2, time.Now())
	account.OnOrderPendingNew(account, order)
	order.Fill(2)

	trade := Trade{Amount: 2, Price: dec("4000")}
	account.OnTrade(futuresCtx(nil, nil), account, order, trade)

	position := account.Portfolio().Position("IF2409.CFE")
	assert.Equal(t, int64(2), position.Quantity)
	assert.True(t, dec("4000").Equal(position.AvgPrice))
	assert.True(t, dec("240000").Equal(position.Margin))
	assert.Equal(t, int64(2), position.OpenTodayAmount)
	// the order's margin is released from FrozenCash once it's filled
	assert.True(t, account.Portfolio().FrozenCash.IsZero())
}

func TestFutureAccount_CloseTodayAmount_CapsAtOpenToday(t *testing.T) {
	account := NewFutureAccount(dec("1000000"), newFutureProxy(), FutureAccountConfig{})
	position := account.Portfolio().Position("IF2409.CFE")
	position.Quantity = 5
	position.OpenTodayAmount = 3

	// a sell against a long position is a closing trade
	assert.Equal(t, int64(3), account.CloseTodayAmount("IF2409.CFE", 5, SideSell))
	assert.Equal(t, int64(2), account.CloseTodayAmount("IF2409.CFE", 2, SideSell))
	// a buy against a long position only opens more, never closes
	assert.Equal(t, int64(0), account.CloseTodayAmount("IF2409.CFE", 2, SideBuy))
}

func TestFutureAccount_OnTrade_ClosingRealizesPnL(t *testing.T) {
	account := NewFutureAccount(dec("1000000"), newFutureProxy(), FutureAccountConfig{MarginRate: dec("0.1")})

	open := NewOrder("o1", "IF2409.CFE", SideBuy, OrderLimit, dec("4000"), 2, time.Now())
	account.OnOrderPendingNew(account, open)
	open.Fill(2)
	account.OnTrade(futuresCtx(nil, nil), account, open, Trade{Amount: 2, Price: dec("4000")})

	close := NewOrder("o2", "IF2409.CFE", SideSell, OrderLimit, dec("4100"), 2, time.Now())
	account.OnOrderPendingNew(account, close)
	close.Fill(2)
	account.OnTrade(futuresCtx(nil, nil), account, close, Trade{Amount: 2, Price: dec("4100")})

	position := account.Portfolio().Position("IF2409.CFE")
	assert.Equal(t, int64(0), position.Quantity)
	assert.True(t, position.Margin.IsZero())
	// the position is flat again: every margin dollar held against it
	// returns to cash, leaving only the (4100-4000)*2*300 = 60000 realized gain.
	assert.True(t, dec("1060000").Equal(account.Portfolio().Cash))
}

func TestFutureAccount_Settlement_RebasesAvgPriceToLastPrice(t *testing.T) {
	account := NewFutureAccount(dec("1000000"), newFutureProxy(), FutureAccountConfig{MarginRate: dec("0.1")})

	position := account.Portfolio().Position("IF2409.CFE")
	position.Quantity = 2
	position.AvgPrice = dec("4000")
	position.LastPrice = dec("4050")
	position.Margin = dec("240000")

	account.Settlement(futuresCtx(nil, nil))

	// mark-to-market P&L = (4050-4000)*2*300 = 30000, margin re-marked to
	// the now-current price: 2*4050*300*0.1 = 243000
	assert.True(t, position.AvgPrice.Equal(dec("4050")))
	assert.True(t, position.Margin.Equal(dec("243000")))
	assert.True(t, dec("1000000").Add(dec("30000")).Sub(dec("3000")).Equal(account.Portfolio().Cash))
}

func TestFutureAccount_AfterTrading_ClearsOpenTodayAmount(t *testing.T) {
	account := NewFutureAccount(dec("1000000"), newFutureProxy(), FutureAccountConfig{})
	position := account.Portfolio().Position("IF2409.CFE")
	position.OpenTodayAmount = 5

	account.AfterTrading(futuresCtx(newFutureProxy(), nil))
	assert.Equal(t, int64(0), position.OpenTodayAmount)
}

func TestFutureAccount_AfterTrading_DelistingSweepReturnsMarginToCash(t *testing.T) {
	account := NewFutureAccount(dec("1000000"), newFutureProxy(), FutureAccountConfig{})
	position := account.Portfolio().Position("IF2409.CFE")
	position.Quantity = 2
	position.Margin = dec("240000")

	tradingDt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	proxy := newFutureProxy()
	inst := proxy.instruments["IF2409.CFE"]
	inst.DelistedDate = tradingDt
	proxy.instruments["IF2409.CFE"] = inst

	account.AfterTrading(TradingContext{TradingDt: tradingDt, DataProxy: proxy})

	assert.True(t, dec("1240000").Equal(account.Portfolio().Cash))
	_, stillHeld := account.Portfolio().Positions["IF2409.CFE"]
	assert.False(t, stillHeld)
}

func TestApplyFuturesFill_DirectionFlip(t *testing.T) {
	position := &Position{Quantity: 3, AvgPrice: dec("100")}
	// sell 5: closes the 3 long, opens 2 short at the trade price
	pnl := applyFuturesFill(position, SideSell, dec("110"), 5)

	assert.Equal(t, int64(-2), position.Quantity)
	assert.True(t, position.AvgPrice.Equal(dec("110")))
	// realized pnl on the closing 3: (110-100)*3 = 30
	assert.True(t, pnl.Equal(decimal.NewFromInt(30)))
}

func TestWeightedAvg_BlendsExistingAndNewCost(t *testing.T) {
	avg := weightedAvg(dec("100"), 10, dec("120"), 10)
	assert.True(t, avg.Equal(dec("110")))
}

func TestWeightedAvg_NoExistingQuantityUsesNewPrice(t *testing.T) {
	avg := weightedAvg(decimal.Zero, 0, dec("120"), 10)
	assert.True(t, avg.Equal(dec("120")))
}

func TestFutureAccount_CaptureRestore_RoundTripsPortfolioState(t *testing.T) {
	proxy := newFutureProxy()
	account := NewFutureAccount(dec("1000000"), proxy, FutureAccountConfig{MarginRate: dec("0.1")})
	order := NewOrder("o1", "IF2409.CFE", SideBuy, OrderLimit, dec("4000"), 2, time.Now())
	account.OnOrderPendingNew(account, order)
	account.OnTrade(futuresCtx(proxy, nil), account, order, Trade{Price: dec("4000"), Amount: 2, Commission: dec("10")})

	data, err := account.Capture()
	assert.NoError(t, err)

	restored := NewFutureAccount(dec("0"), proxy, FutureAccountConfig{MarginRate: dec("0.1")})
	assert.NoError(t, restored.Restore(data))

	assert.True(t, account.Portfolio().Cash.Equal(restored.Portfolio().Cash))
	assert.Equal(t, account.Portfolio().Positions["IF2409.CFE"].Quantity, restored.Portfolio().Positions["IF2409.CFE"].Quantity)
	assert.True(t, account.Portfolio().Positions["IF2409.CFE"].Margin.Equal(restored.Portfolio().Positions["IF2409.CFE"].Margin))

	again, err := restored.Capture()
	assert.NoError(t, err)
	assert.Equal(t, data, again)
}
