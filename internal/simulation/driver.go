package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/backtrader/internal/domain"
	"github.com/alejandrodnm/backtrader/internal/eventbus"
	"github.com/alejandrodnm/backtrader/internal/ports"
)

// MatchingType selects when a fill settles.
type MatchingType string

const (
	MatchCurrentBarClose MatchingType = "CURRENT_BAR_CLOSE"
	MatchNextBarOpen     MatchingType = "NEXT_BAR_OPEN"
)

// Frequency is the bar cadence a run iterates at; it governs whether a
// freshly submitted order can fill on the bar it was submitted on.
type Frequency string

const (
	FrequencyDaily  Frequency = "1d"
	FrequencyMinute Frequency = "1m"
	FrequencyTick   Frequency = "tick"
)

// Config is the closed set of run parameters the core recognizes.
type Config struct {
	MatchingType MatchingType
	Frequency    Frequency
	AccountList  []domain.AccountType

	StockStartingCash  decimal.Decimal
	FutureStartingCash decimal.Decimal

	// Benchmark is an instrument id to seed a passive BenchmarkAccount
	// against; empty means no benchmark account is created.
	Benchmark string

	HandleSplit bool

	// T1ExemptInstruments overrides the set of instruments exempt from
	// the T+1 holding rule; nil falls back to domain.DefaultT1ExemptInstruments.
	T1ExemptInstruments []string

	BarLimit                  bool
	CashReturnByStockDelisted bool
	VolumePercent             decimal.Decimal

	// ReplayRate paces bar-by-bar dispatch to wall-clock time, when
	// non-zero; zero runs the whole calendar as fast as possible.
	ReplayRate rate.Limit

	FutureMarginRate decimal.Decimal
}

// Driver walks a calendar, publishing lifecycle events to the bus for
// every trading day and bar, and routing orders submitted by a
// strategy through the broker and matcher. The driver itself holds no
// financial state — it exists to advance simulation time and wire
// collaborators together.
type Driver struct {
	cfg       Config
	calendar  ports.Calendar
	barSource ports.BarSource
	dataProxy domain.DataProxy
	storage   ports.Storage
	strategy  ports.Strategy
	logger    *slog.Logger

	bus      *eventbus.Bus
	broker   *Broker
	matcher  *Matcher
	accounts map[domain.AccountType]domain.Account

	limiter *rate.Limiter
}

// NewDriver wires a bus, matcher, broker, and the account set cfg
// names. strategy and storage may be nil: a nil strategy runs the
// calendar with no order flow (useful for smoke-testing data plumbing);
// a nil storage skips persistence.
func NewDriver(cfg Config, calendar ports.Calendar, barSource ports.BarSource, dataProxy domain.DataProxy, strategy ports.Strategy, storage ports.Storage, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VolumePercent.IsZero() {
		cfg.VolumePercent, _ = decimal.NewFromString(defaultVolumePercent)
	}
	if cfg.FutureMarginRate.IsZero() {
		cfg.FutureMarginRate = decimal.NewFromFloat(0.1)
	}

	bus := eventbus.New()

	var dealPrice DealPriceDecider
	matchImmediately := cfg.MatchingType == MatchCurrentBarClose
	if matchImmediately {
		dealPrice = domain.CurrentBarClose
	} else {
		dealPrice = domain.NextBarOpen
	}
	matcher := NewMatcher(dealPrice, cfg.BarLimit, cfg.VolumePercent)

	accounts, err := buildAccounts(cfg, dataProxy)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:       cfg,
		calendar:  calendar,
		barSource: barSource,
		dataProxy: dataProxy,
		storage:   storage,
		strategy:  strategy,
		logger:    logger,
		bus:       bus,
		matcher:   matcher,
		accounts:  accounts,
	}

	resolver := func(instrumentID string) (domain.Account, error) {
		instrument, ok := dataProxy.Instrument(instrumentID)
		if !ok {
			return nil, fmt.Errorf("simulation: unknown instrument %q", instrumentID)
		}
		accountType := domain.AccountStock
		if instrument.Type == domain.InstrumentFuture {
			accountType = domain.AccountFuture
		}
		account, ok := accounts[accountType]
		if !ok {
			return nil, fmt.Errorf("simulation: no %s account configured for instrument %q", accountType, instrumentID)
		}
		return account, nil
	}
	d.broker = NewBroker(bus, matcher, resolver, matchImmediately, cfg.Frequency == FrequencyDaily)

	for _, account := range accounts {
		subscribeAccount(bus, account)
	}

	if cfg.ReplayRate > 0 {
		d.limiter = rate.NewLimiter(cfg.ReplayRate, 1)
	}

	return d, nil
}

func buildAccounts(cfg Config, dataProxy domain.DataProxy) (map[domain.AccountType]domain.Account, error) {
	accounts := make(map[domain.AccountType]domain.Account)
	totalCash := decimal.Zero

	for _, accountType := range cfg.AccountList {
		switch accountType {
		case domain.AccountStock:
			accounts[domain.AccountStock] = domain.NewStockAccount(cfg.StockStartingCash, domain.StockAccountConfig{
				HandleSplit:         cfg.HandleSplit,
				CashReturnOnDelist:  cfg.CashReturnByStockDelisted,
				T1ExemptInstruments: cfg.T1ExemptInstruments,
			})
			totalCash = totalCash.Add(cfg.StockStartingCash)
		case domain.AccountFuture:
			accounts[domain.AccountFuture] = domain.NewFutureAccount(cfg.FutureStartingCash, dataProxy, domain.FutureAccountConfig{
				MarginRate: cfg.FutureMarginRate,
			})
			totalCash = totalCash.Add(cfg.FutureStartingCash)
		default:
			return nil, fmt.Errorf("simulation: unsupported account type %q", accountType)
		}
	}

	if cfg.Benchmark != "" {
		accounts[domain.AccountBenchmark] = domain.NewBenchmarkAccount(totalCash, cfg.Benchmark)
	}

	return accounts, nil
}

// subscribeAccount registers an account's order and trade callbacks
// against the bus, filtering those events down to the account the
// payload names — the bus broadcasts to every listener regardless of
// which account an event concerns. The day and bar callbacks
// (BeforeTrading, OnBar, AfterTrading, Settlement) are not subscribed;
// runDay calls them directly.
func subscribeAccount(bus *eventbus.Bus, account domain.Account) {
	bus.Subscribe(eventbus.EventOrderPendingNew, func(args ...any) {
		acc, order := args[0].(domain.Account), args[1].(*domain.Order)
		if acc == account {
			account.OnOrderPendingNew(acc, order)
		}
	})
	bus.Subscribe(eventbus.EventOrderCreationReject, func(args ...any) {
		acc, order := args[0].(domain.Account), args[1].(*domain.Order)
		if acc == account {
			account.OnOrderCreationReject(acc, order)
		}
	})
	bus.Subscribe(eventbus.EventOrderCancellationPass, func(args ...any) {
		acc, order := args[0].(domain.Account), args[1].(*domain.Order)
		if acc == account {
			account.OnOrderCancellationPass(acc, order)
		}
	})
	bus.Subscribe(eventbus.EventOrderUnsolicitedUpdate, func(args ...any) {
		acc, order := args[0].(domain.Account), args[1].(*domain.Order)
		if acc == account {
			account.OnOrderUnsolicitedUpdate(acc, order)
		}
	})
	bus.Subscribe(eventbus.EventTrade, func(args ...any) {
		acc, order, trade := args[0].(domain.Account), args[1].(*domain.Order), args[2].(domain.Trade)
		if acc == account {
			account.OnTrade(args[3].(domain.TradingContext), acc, order, trade)
		}
	})
}

// Run walks every trading day in [from, to], publishing the full
// lifecycle of events for each, and returns the daily portfolio series
// and trade ledger accumulated along the way.
func (d *Driver) Run(from, to time.Time) (*Result, error) {
	result := &Result{}
	d.subscribeTradeRecorder(result)

	if d.strategy != nil {
		if err := d.strategy.Init(&submitterAdapter{driver: d}); err != nil {
			return nil, fmt.Errorf("simulation: strategy init: %w", err)
		}
	}

	for _, day := range d.calendar.TradingDates(from, to) {
		if err := d.runDay(day, result); err != nil {
			return nil, fmt.Errorf("simulation: day %s: %w", day.Format("2006-01-02"), err)
		}
	}

	return result, nil
}

func (d *Driver) runDay(day time.Time, result *Result) error {
	ctx := Context{Bus: d.bus, DataProxy: d.dataProxy, TradingDt: day, CalendarDt: day}

	d.bus.Publish(eventbus.EventBeforeTrading, ctx.TradingContext())
	for _, account := range d.accounts {
		account.BeforeTrading(ctx.TradingContext())
	}
	if d.strategy != nil {
		if err := d.strategy.BeforeTrading(ctx.TradingContext()); err != nil {
			return fmt.Errorf("before trading: %w", err)
		}
	}

	ticks, err := d.barSource.BarsForDay(day)
	if err != nil {
		return fmt.Errorf("bar source: %w", err)
	}

	for _, tick := range ticks {
		if d.limiter != nil {
			if err := d.limiter.Wait(context.Background()); err != nil {
				d.logger.Warn("replay pacing interrupted", "err", err)
			}
		}

		ctx.CalendarDt = tick.CalendarDt
		ctx.BarDict = tick.BarDict

		d.bus.Publish(eventbus.EventBar, ctx.BarDict)
		for _, account := range d.accounts {
			account.OnBar(ctx.TradingContext())
		}
		if d.strategy != nil {
			if err := d.strategy.HandleBar(ctx.TradingContext()); err != nil {
				return fmt.Errorf("handle bar: %w", err)
			}
		}

		d.broker.Bar(ctx)
	}

	for _, account := range d.accounts {
		account.AfterTrading(ctx.TradingContext())
	}
	if d.strategy != nil {
		if err := d.strategy.AfterTrading(ctx.TradingContext()); err != nil {
			return fmt.Errorf("after trading: %w", err)
		}
	}
	d.bus.Publish(eventbus.EventAfterTrading, ctx.TradingContext())

	for _, account := range d.accounts {
		account.Settlement(ctx.TradingContext())
	}
	d.bus.Publish(eventbus.EventSettlement, ctx.TradingContext())

	result.recordDay(day, d.accounts)
	if d.storage != nil {
		if err := d.persistDay(day); err != nil {
			d.logger.Warn("persist daily snapshot failed", "day", day, "err", err)
		}
	}

	return nil
}

func (d *Driver) subscribeTradeRecorder(result *Result) {
	d.bus.Subscribe(eventbus.EventTrade, func(args ...any) {
		account, order, trade := args[0].(domain.Account), args[1].(*domain.Order), args[2].(domain.Trade)
		result.recordTrade(account.Type(), order, trade)

		if d.storage == nil {
			return
		}
		if err := d.storage.SaveTrade(ports.TradeRecord{
			ExecID:       trade.ExecID,
			OrderID:      order.ID,
			InstrumentID: order.InstrumentID,
			AccountType:  string(account.Type()),
			Side:         string(order.Side),
			Price:        trade.Price,
			Amount:       trade.Amount,
			Commission:   trade.Commission,
			Tax:          trade.Tax,
			TradingDate:  trade.TradingDt,
		}); err != nil {
			d.logger.Warn("persist trade failed", "exec_id", trade.ExecID, "err", err)
		}
	})
}

func (d *Driver) persistDay(day time.Time) error {
	for accountType, account := range d.accounts {
		portfolio := account.Portfolio()
		if err := d.storage.SaveSnapshot(ports.PortfolioSnapshot{
			TradingDate: day,
			AccountType: string(accountType),
			Cash:        portfolio.Cash,
			TotalValue:  portfolio.Value(),
			PnL:         portfolio.Value().Sub(portfolio.YesterdayPortfolioValue),
		}); err != nil {
			return err
		}
	}
	return d.persistState()
}

// persistState captures the broker's delayed-order-id blob and every
// account's portfolio state, saving each under its own storage key so
// a later run can resume from exactly where this one left off.
func (d *Driver) persistState() error {
	brokerState, err := d.broker.Capture()
	if err != nil {
		return fmt.Errorf("capture broker state: %w", err)
	}
	if err := d.storage.SaveState("broker", brokerState); err != nil {
		return fmt.Errorf("save broker state: %w", err)
	}

	for accountType, account := range d.accounts {
		state, err := account.Capture()
		if err != nil {
			return fmt.Errorf("capture %s account state: %w", accountType, err)
		}
		if err := d.storage.SaveState(string(accountType), state); err != nil {
			return fmt.Errorf("save %s account state: %w", accountType, err)
		}
	}
	return nil
}

// RestoreState loads any previously persisted broker and account state
// back into the driver's live accounts and broker queues. candidates
// is every non-terminal order a caller already knows is outstanding
// from before — the broker partitions it into delayed/open by whether
// an order's id was in the saved delayed set; nil is correct once a
// prior run has fully settled a day with nothing left in flight.
func (d *Driver) RestoreState(candidates []OpenOrder) error {
	if d.storage == nil {
		return nil
	}

	for accountType, account := range d.accounts {
		data, ok, err := d.storage.State(string(accountType))
		if err != nil {
			return fmt.Errorf("load %s account state: %w", accountType, err)
		}
		if !ok {
			continue
		}
		if err := account.Restore(data); err != nil {
			return fmt.Errorf("restore %s account state: %w", accountType, err)
		}
	}

	data, ok, err := d.storage.State("broker")
	if err != nil {
		return fmt.Errorf("load broker state: %w", err)
	}
	if !ok {
		return nil
	}
	return d.broker.Restore(data, candidates)
}

// submitterAdapter gives a strategy access to the broker through the
// narrow OrderSubmitter surface, binding each call to the driver's
// current Context.
type submitterAdapter struct {
	driver *Driver
}

func (s *submitterAdapter) SubmitOrder(tc domain.TradingContext, order *domain.Order) error {
	ctx := Context{
		Bus:        s.driver.bus,
		DataProxy:  s.driver.dataProxy,
		TradingDt:  tc.TradingDt,
		CalendarDt: tc.CalendarDt,
		BarDict:    tc.BarDict,
	}
	return s.driver.broker.SubmitOrder(ctx, order)
}

func (s *submitterAdapter) CancelOrder(_ domain.TradingContext, orderID string) error {
	return s.driver.broker.CancelOrder(orderID)
}
