package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/algomatic/stratgraph/pkg/persistence"
)

var metricLineRe = regexp.MustCompile(`^(.+?):\s*\$?([0-9.-]+)(%)?$`)

// ParseMetrics reads "Label: value" lines. Labels become lower-case keys
// with runs of whitespace replaced by underscores; a leading $ and a
// trailing % are dropped from the value. Lines that do not match are
// ignored.
func ParseMetrics(text string) map[string]float64 {
	out := make(map[string]float64)
	for _, line := range strings.Split(text, "\n") {
		m := metricLineRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		key := strings.ToLower(strings.Join(strings.Fields(m[1]), "_"))
		out[key] = v
	}
	return out
}

// readCSV reads a headed CSV file into one map per row. A missing file
// yields no rows. Short rows get empty strings for the missing columns.
func readCSV(path string) ([]persistence.TradeRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []persistence.TradeRow{}, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]persistence.TradeRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []persistence.TradeRow{}, nil
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := []persistence.TradeRow{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		row := make(persistence.TradeRow, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
