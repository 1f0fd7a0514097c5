// Package marketdata is a CSV-backed implementation of the data
// collaborators a run needs: the trading calendar, the bar feed, and
// instrument/corporate-action reference data. It loads everything into
// memory once at construction time, matching the read-mostly access
// pattern a backtest makes against historical data.
package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/backtrader/internal/domain"
	"github.com/alejandrodnm/backtrader/internal/ports"
)

const dateLayout = "2006-01-02"

// Source loads instrument reference data, OHLCV bars, dividends, and
// splits from a directory of CSV files, and serves them back as
// ports.Calendar, ports.BarSource, and domain.DataProxy.
//
// Expected files under dir:
//
//	instruments.csv: id,type,symbol,listed_date,delisted_date,round_lot,exchange,contract_multiplier
//	bars.csv:        instrument_id,date,open,high,low,close,volume,limit_up,limit_down,status
//	dividends.csv:   instrument_id,book_closure_date,ex_dividend_date,payable_date,cash_before_tax,round_lot
//	splits.csv:      instrument_id,date,split_from,split_to
//
// dividends.csv and splits.csv are optional; a missing file is treated
// as an empty table.
type Source struct {
	instruments map[string]domain.Instrument
	bars        map[string]map[string][]domain.Bar // instrument id -> date key -> bars for that day, in file order
	tradingDays []time.Time

	dividends map[string]map[string]domain.DividendSeries // instrument id -> book-closure date key -> series
	splits    map[string]map[string][2]int64              // instrument id -> date key -> [from, to]
}

// Load reads every CSV file under dir and builds a Source.
func Load(dir string) (*Source, error) {
	instruments, err := loadInstruments(dir + "/instruments.csv")
	if err != nil {
		return nil, fmt.Errorf("marketdata.Load: %w", err)
	}

	bars, days, err := loadBars(dir+"/bars.csv", instruments)
	if err != nil {
		return nil, fmt.Errorf("marketdata.Load: %w", err)
	}

	dividends, err := loadDividends(dir + "/dividends.csv")
	if err != nil {
		return nil, fmt.Errorf("marketdata.Load: %w", err)
	}

	splits, err := loadSplits(dir + "/splits.csv")
	if err != nil {
		return nil, fmt.Errorf("marketdata.Load: %w", err)
	}

	return &Source{
		instruments: instruments,
		bars:        bars,
		tradingDays: days,
		dividends:   dividends,
		splits:      splits,
	}, nil
}

func loadInstruments(path string) (map[string]domain.Instrument, error) {
	rows, err := readCSV(path, true)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.Instrument, len(rows))
	for _, row := range rows {
		if len(row) < 8 {
			return nil, fmt.Errorf("instruments.csv: row %v: expected 8 columns", row)
		}
		roundLot, err := strconv.ParseInt(row[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("instruments.csv: round_lot: %w", err)
		}
		multiplier, err := strconv.ParseInt(row[7], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("instruments.csv: contract_multiplier: %w", err)
		}
		listed, err := parseOptionalDate(row[3])
		if err != nil {
			return nil, fmt.Errorf("instruments.csv: listed_date: %w", err)
		}
		delisted, err := parseOptionalDate(row[4])
		if err != nil {
			return nil, fmt.Errorf("instruments.csv: delisted_date: %w", err)
		}

		out[row[0]] = domain.Instrument{
			ID:                 row[0],
			Type:               domain.InstrumentType(row[1]),
			Symbol:             row[2],
			ListedDate:         listed,
			DelistedDate:       delisted,
			RoundLot:           roundLot,
			Exchange:           row[6],
			ContractMultiplier: multiplier,
		}
	}
	return out, nil
}

func loadBars(path string, instruments map[string]domain.Instrument) (map[string]map[string][]domain.Bar, []time.Time, error) {
	rows, err := readCSV(path, true)
	if err != nil {
		return nil, nil, err
	}

	bars := make(map[string]map[string][]domain.Bar)
	dayIndex := make(map[string]time.Time)

	for _, row := range rows {
		if len(row) < 10 {
			return nil, nil, fmt.Errorf("bars.csv: row %v: expected 10 columns", row)
		}
		instrumentID := row[0]
		instrument, ok := instruments[instrumentID]
		if !ok {
			return nil, nil, fmt.Errorf("bars.csv: unknown instrument %q", instrumentID)
		}
		day, err := time.Parse(dateLayout, row[1])
		if err != nil {
			return nil, nil, fmt.Errorf("bars.csv: date: %w", err)
		}

		bar, err := parseBar(instrument, row[2:])
		if err != nil {
			return nil, nil, fmt.Errorf("bars.csv: instrument %q: %w", instrumentID, err)
		}

		key := row[1]
		if bars[instrumentID] == nil {
			bars[instrumentID] = make(map[string][]domain.Bar)
		}
		bars[instrumentID][key] = append(bars[instrumentID][key], bar)
		dayIndex[key] = day
	}

	days := make([]time.Time, 0, len(dayIndex))
	for _, d := range dayIndex {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	return bars, days, nil
}

func parseBar(instrument domain.Instrument, fields []string) (domain.Bar, error) {
	open, err := decimal.NewFromString(fields[0])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("open: %w", err)
	}
	high, err := decimal.NewFromString(fields[1])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("high: %w", err)
	}
	low, err := decimal.NewFromString(fields[2])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := decimal.NewFromString(fields[3])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("close: %w", err)
	}
	volume, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("volume: %w", err)
	}

	var limitUp, limitDown decimal.Decimal
	if fields[5] != "" {
		limitUp, err = decimal.NewFromString(fields[5])
		if err != nil {
			return domain.Bar{}, fmt.Errorf("limit_up: %w", err)
		}
	}
	if fields[6] != "" {
		limitDown, err = decimal.NewFromString(fields[6])
		if err != nil {
			return domain.Bar{}, fmt.Errorf("limit_down: %w", err)
		}
	}

	status := domain.BarOK
	if fields[7] != "" {
		status = domain.BarStatus(fields[7])
	}

	return domain.Bar{
		Instrument: instrument,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
		LimitUp:    limitUp,
		LimitDown:  limitDown,
		Status:     status,
	}, nil
}

func loadDividends(path string) (map[string]map[string]domain.DividendSeries, error) {
	rows, err := readCSV(path, true)
	if os.IsNotExist(err) {
		return map[string]map[string]domain.DividendSeries{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]domain.DividendSeries)
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("dividends.csv: row %v: expected 6 columns", row)
		}
		bookClosure, err := time.Parse(dateLayout, row[1])
		if err != nil {
			return nil, fmt.Errorf("dividends.csv: book_closure_date: %w", err)
		}
		exDividend, err := time.Parse(dateLayout, row[2])
		if err != nil {
			return nil, fmt.Errorf("dividends.csv: ex_dividend_date: %w", err)
		}
		payable, err := time.Parse(dateLayout, row[3])
		if err != nil {
			return nil, fmt.Errorf("dividends.csv: payable_date: %w", err)
		}
		cash, err := decimal.NewFromString(row[4])
		if err != nil {
			return nil, fmt.Errorf("dividends.csv: cash_before_tax: %w", err)
		}
		roundLot, err := strconv.ParseInt(row[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dividends.csv: round_lot: %w", err)
		}

		instrumentID := row[0]
		if out[instrumentID] == nil {
			out[instrumentID] = make(map[string]domain.DividendSeries)
		}
		out[instrumentID][row[1]] = domain.DividendSeries{
			BookClosureDate:       bookClosure,
			ExDividendDate:        exDividend,
			PayableDate:           payable,
			DividendCashBeforeTax: cash,
			RoundLot:              roundLot,
		}
	}
	return out, nil
}

func loadSplits(path string) (map[string]map[string][2]int64, error) {
	rows, err := readCSV(path, true)
	if os.IsNotExist(err) {
		return map[string]map[string][2]int64{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string][2]int64)
	for _, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("splits.csv: row %v: expected 4 columns", row)
		}
		from, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("splits.csv: split_from: %w", err)
		}
		to, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("splits.csv: split_to: %w", err)
		}

		instrumentID := row[0]
		if out[instrumentID] == nil {
			out[instrumentID] = make(map[string][2]int64)
		}
		out[instrumentID][row[1]] = [2]int64{from, to}
	}
	return out, nil
}

// readCSV opens path and returns its rows, skipping the header when
// skipHeader is true.
func readCSV(path string, skipHeader bool) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if first && skipHeader {
			first = false
			continue
		}
		first = false
		rows = append(rows, row)
	}
	return rows, nil
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// TradingDates implements ports.Calendar by returning every day that
// has at least one bar, within [from, to].
func (s *Source) TradingDates(from, to time.Time) []time.Time {
	var out []time.Time
	for _, d := range s.tradingDays {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// BarsForDay implements ports.BarSource. A daily-frequency load has
// exactly one bar per instrument per day, so it returns a single tick.
func (s *Source) BarsForDay(tradingDate time.Time) ([]ports.BarTick, error) {
	key := tradingDate.Format(dateLayout)

	barDict := make(map[string]domain.Bar)
	for instrumentID, byDay := range s.bars {
		dayBars, ok := byDay[key]
		if !ok || len(dayBars) == 0 {
			continue
		}
		barDict[instrumentID] = dayBars[len(dayBars)-1]
	}
	if len(barDict) == 0 {
		return nil, nil
	}

	return []ports.BarTick{{CalendarDt: tradingDate, BarDict: barDict}}, nil
}

// Instrument implements domain.DataProxy.
func (s *Source) Instrument(instrumentID string) (domain.Instrument, bool) {
	instrument, ok := s.instruments[instrumentID]
	return instrument, ok
}

// DividendByBookDate implements domain.DataProxy.
func (s *Source) DividendByBookDate(instrumentID string, tradingDate time.Time) (domain.DividendSeries, bool) {
	byDate, ok := s.dividends[instrumentID]
	if !ok {
		return domain.DividendSeries{}, false
	}
	series, ok := byDate[tradingDate.Format(dateLayout)]
	return series, ok
}

// SplitByDate implements domain.DataProxy.
func (s *Source) SplitByDate(instrumentID string, tradingDate time.Time) (int64, int64, bool) {
	byDate, ok := s.splits[instrumentID]
	if !ok {
		return 0, 0, false
	}
	pair, ok := byDate[tradingDate.Format(dateLayout)]
	if !ok {
		return 0, 0, false
	}
	return pair[0], pair[1], true
}
