package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/backtrader/internal/domain"
	"github.com/alejandrodnm/backtrader/internal/simulation"
)

func testResult() *simulation.Result {
	day1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	order := &domain.Order{InstrumentID: "000001.XSHE", Side: domain.SideBuy}
	return &simulation.Result{
		DailyPortfolios: []simulation.DailyPortfolio{
			{TradingDate: day1, AccountType: domain.AccountStock, Cash: decimal.RequireFromString("90000"), TotalValue: decimal.RequireFromString("100000"), PnL: decimal.Zero},
			{TradingDate: day2, AccountType: domain.AccountStock, Cash: decimal.RequireFromString("85000"), TotalValue: decimal.RequireFromString("102000"), PnL: decimal.RequireFromString("2000")},
		},
		Trades: []simulation.TradeLedgerEntry{
			{AccountType: domain.AccountStock, Order: order, Trade: domain.Trade{
				TradingDt: day1, Price: decimal.RequireFromString("10"), Amount: 100,
				Commission: decimal.RequireFromString("5"), Tax: decimal.Zero,
			}},
		},
		Warnings: []string{"bar data missing for 000002.XSHE on 2024-01-03"},
	}
}

func TestConsole_PrintCompact_SummarizesLatestSnapshotPerAccount(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsoleWriter(&buf, false)

	console.Print(testResult())

	out := buf.String()
	assert.Contains(t, out, "STOCK")
	assert.Contains(t, out, "85000.00")
	assert.Contains(t, out, "102000.00")
	assert.Contains(t, out, "1 trades over 2 account-days")
	assert.Contains(t, out, "warning: bar data missing for 000002.XSHE on 2024-01-03")
}

func TestConsole_PrintFull_RendersPortfolioAndTradeTables(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsoleWriter(&buf, true)

	console.Print(testResult())

	out := buf.String()
	assert.Contains(t, out, "2024-01-02")
	assert.Contains(t, out, "2024-01-03")
	assert.Contains(t, out, "000001.XSHE")
	assert.Contains(t, out, "BUY")
}

func TestLatestByAccount_KeepsOnlyMostRecentSnapshotPerAccount(t *testing.T) {
	day1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	snapshots := []simulation.DailyPortfolio{
		{TradingDate: day1, AccountType: domain.AccountStock, Cash: decimal.RequireFromString("90000")},
		{TradingDate: day1, AccountType: domain.AccountFuture, Cash: decimal.RequireFromString("1000000")},
		{TradingDate: day2, AccountType: domain.AccountStock, Cash: decimal.RequireFromString("85000")},
	}

	latest := latestByAccount(snapshots)

	assert.Len(t, latest, 2)
	byType := make(map[domain.AccountType]simulation.DailyPortfolio)
	for _, snap := range latest {
		byType[snap.AccountType] = snap
	}
	assert.True(t, decimal.RequireFromString("85000").Equal(byType[domain.AccountStock].Cash))
	assert.True(t, decimal.RequireFromString("1000000").Equal(byType[domain.AccountFuture].Cash))
}
