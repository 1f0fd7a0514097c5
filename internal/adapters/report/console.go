// Package report renders a completed run's results to the console.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/backtrader/internal/simulation"
)

// Console prints a simulation.Result in one of two modes: a compact
// one-line-per-account summary, or the full daily-series and trade
// ledger tables.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a console reporter writing to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a console reporter writing to w, for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Print renders result in the mode the reporter was configured with.
func (c *Console) Print(result *simulation.Result) {
	if c.table {
		c.printFull(result)
	} else {
		c.printCompact(result)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(c.out, "warning: %s\n", warning)
	}
}

func (c *Console) printCompact(result *simulation.Result) {
	finals := latestByAccount(result.DailyPortfolios)
	for _, snapshot := range finals {
		fmt.Fprintf(c.out, "%-10s cash=%s value=%s pnl=%s\n",
			snapshot.AccountType, snapshot.Cash.StringFixed(2), snapshot.TotalValue.StringFixed(2), snapshot.PnL.StringFixed(2))
	}
	fmt.Fprintf(c.out, "%d trades over %d account-days\n", len(result.Trades), len(result.DailyPortfolios))
}

func (c *Console) printFull(result *simulation.Result) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Date", "Account", "Cash", "Total Value", "PnL")
	for _, snapshot := range result.DailyPortfolios {
		table.Append(
			snapshot.TradingDate.Format("2006-01-02"),
			string(snapshot.AccountType),
			snapshot.Cash.StringFixed(2),
			snapshot.TotalValue.StringFixed(2),
			snapshot.PnL.StringFixed(2),
		)
	}
	table.Render()

	fmt.Fprintln(c.out)

	trades := tablewriter.NewWriter(c.out)
	trades.Header("Date", "Account", "Instrument", "Side", "Price", "Amount", "Commission", "Tax")
	for _, entry := range result.Trades {
		trades.Append(
			entry.Trade.TradingDt.Format("2006-01-02"),
			string(entry.AccountType),
			entry.Order.InstrumentID,
			string(entry.Order.Side),
			entry.Trade.Price.StringFixed(4),
			fmt.Sprintf("%d", entry.Trade.Amount),
			entry.Trade.Commission.StringFixed(2),
			entry.Trade.Tax.StringFixed(2),
		)
	}
	trades.Render()
}

func latestByAccount(snapshots []simulation.DailyPortfolio) []simulation.DailyPortfolio {
	latest := make(map[string]simulation.DailyPortfolio)
	var order []string
	for _, snapshot := range snapshots {
		key := string(snapshot.AccountType)
		if _, ok := latest[key]; !ok {
			order = append(order, key)
		}
		latest[key] = snapshot
	}
	out := make([]simulation.DailyPortfolio, 0, len(order))
	for _, key := range order {
		out = append(out, latest[key])
	}
	return out
}
