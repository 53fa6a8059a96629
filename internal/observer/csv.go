package observer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Default CSV column order when a file has no header row.
var defaultColumns = []string{"datetime", "open", "high", "low", "close", "volume", "adj_close"}

// LoadCSVDir reads <dir>/<SYMBOL>.csv for every symbol.
func LoadCSVDir(dir string, symbols []string) (map[string][]types.Bar, error) {
	out := make(map[string][]types.Bar, len(symbols))
	for _, sym := range symbols {
		bars, err := LoadCSVFile(filepath.Join(dir, sym+".csv"), sym)
		if err != nil {
			return nil, err
		}
		out[sym] = bars
	}
	return out, nil
}

// LoadCSVFile reads one symbol's bars from a CSV file.
func LoadCSVFile(path, symbol string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := ParseCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return bars, nil
}

// ParseCSV parses bars from a CSV reader.
// Columns: datetime,open,high,low,close,volume,adj_close. A header row may
// reorder them; adj_close falls back to close when absent. Files exported
// as UTF-16 with a byte order mark are decoded transparently.
func ParseCSV(r io.Reader, symbol string) ([]types.Bar, error) {
	reader := csv.NewReader(decodeBOM(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	cols := columnIndex(defaultColumns)
	var bars []types.Bar
	lineNum := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		lineNum++

		if lineNum == 1 {
			record[0] = strings.TrimPrefix(record[0], "\ufeff")
			if isHeader(record) {
				cols = columnIndex(record)
				continue
			}
		}

		if len(record) < 5 {
			continue // Skip short rows
		}

		bar, err := parseRecord(record, cols, symbol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s has no rows", types.ErrNoMarketData, symbol)
	}
	return bars, nil
}

// decodeBOM peeks the first bytes and wraps UTF-16 input in a decoder.
func decodeBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	b, _ := br.Peek(2)
	if len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch name {
		case "timestamp", "time", "date":
			name = "datetime"
		case "adj close", "adjclose", "adjusted_close":
			name = "adj_close"
		}
		idx[name] = i
	}
	return idx
}

func field(record []string, cols map[string]int, name string) (string, bool) {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[i]), true
}

// parseRecord parses a single CSV record into a Bar.
func parseRecord(record []string, cols map[string]int, symbol string) (types.Bar, error) {
	bar := types.Bar{Symbol: symbol}

	raw, ok := field(record, cols, "datetime")
	if !ok {
		return bar, fmt.Errorf("%w: missing datetime column", types.ErrInvalidData)
	}
	ts, err := parseTimestamp(raw)
	if err != nil {
		return bar, fmt.Errorf("parse timestamp: %w", err)
	}
	bar.Timestamp = ts

	prices := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
	}
	for _, p := range prices {
		raw, ok := field(record, cols, p.name)
		if !ok {
			return bar, fmt.Errorf("%w: missing %s column", types.ErrInvalidData, p.name)
		}
		*p.dst, err = decimal.NewFromString(raw)
		if err != nil {
			return bar, fmt.Errorf("parse %s: %w", p.name, err)
		}
	}

	if raw, ok := field(record, cols, "volume"); ok && raw != "" {
		vol, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bar, fmt.Errorf("parse volume: %w", err)
		}
		bar.Volume = int64(vol)
	}

	bar.AdjClose = bar.Close
	if raw, ok := field(record, cols, "adj_close"); ok && raw != "" {
		bar.AdjClose, err = decimal.NewFromString(raw)
		if err != nil {
			return bar, fmt.Errorf("parse adj_close: %w", err)
		}
	}

	if err := bar.Validate(); err != nil {
		return bar, err
	}
	return bar, nil
}

// parseTimestamp tries multiple timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"01/02/2006 15:04:05",
		"01/02/2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unknown timestamp format: %s", s)
}

// isHeader checks if a record looks like a header row.
func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(record[0])) {
	case "timestamp", "time", "date", "datetime", "open":
		return true
	}
	return false
}
