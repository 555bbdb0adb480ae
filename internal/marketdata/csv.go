package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// ReadCSV parses bars of one market. Expected columns:
//
//	time,open,high,low,close,volume
//
// time is RFC3339 or unix seconds. A header row is allowed. Malformed rows
// fail the whole read.
func ReadCSV(r io.Reader, market string) ([]core.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []core.Bar
	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrMalformedData, fmt.Errorf("%s: %w", market, err))
		}
		line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}

		bar, err := parseRow(row, market)
		if err != nil {
			return nil, core.WrapError(core.ErrMalformedData, fmt.Errorf("%s line %d: %w", market, line, err))
		}
		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseRow(row []string, market string) (core.Bar, error) {
	if len(row) != 6 {
		return core.Bar{}, fmt.Errorf("expected 6 columns, got %d", len(row))
	}
	ts, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return core.Bar{}, err
	}

	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = v
	}
	return core.Bar{
		Market: market,
		Time:   ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// LoadDir reads <dir>/<market>.csv for every market and returns all bars
// sorted by timestamp, then market.
func LoadDir(dir string, markets []string) ([]core.Bar, error) {
	var all []core.Bar
	for _, m := range markets {
		path := filepath.Join(dir, m+".csv")
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no data file for %s at %s", m, path))
			}
			return nil, err
		}
		bars, err := ReadCSV(f, m)
		f.Close()
		if err != nil {
			return nil, err
		}
		all = append(all, bars...)
	}
	Sort(all)
	return all, nil
}

// WriteCSV writes bars in the format ReadCSV accepts.
func WriteCSV(w io.Writer, bars []core.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			b.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
