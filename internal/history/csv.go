package history

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// CSVSource reads outcome rows from the append-only CSV log owned by the
// logging collaborator. Layout, one row per detected opportunity:
//
//	timestamp,strategy,pair,fiat,net_percent,effective_net_percent
//
// effective_net_percent is empty until the outcome is known.
type CSVSource struct {
	Path string
}

// Rows implements RowSource. A missing file reads as an empty history, not
// an error; a malformed file is an error the analyzer reports while keeping
// its previous snapshot.
func (s CSVSource) Rows(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows []Row
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("history log line %d: %w", line+1, err)
		}
		line++
		if line == 1 && record[0] == "timestamp" {
			continue // header
		}
		row, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("history log line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(record []string) (Row, error) {
	if len(record) < 5 {
		return Row{}, fmt.Errorf("expected at least 5 fields, got %d", len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return Row{}, fmt.Errorf("bad timestamp %q: %w", record[0], err)
	}
	net, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return Row{}, fmt.Errorf("bad net_percent %q: %w", record[4], err)
	}

	row := Row{
		Timestamp:  ts.UTC(),
		Strategy:   record[1],
		Pair:       record[2],
		Fiat:       record[3],
		NetPercent: net,
	}
	if len(record) > 5 && record[5] != "" {
		eff, err := strconv.ParseFloat(record[5], 64)
		if err != nil {
			return Row{}, fmt.Errorf("bad effective_net_percent %q: %w", record[5], err)
		}
		row.EffectiveNetPercent = eff
		row.HasOutcome = true
	}
	return row, nil
}
