package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
)

// ReplayLog replays report rows from r to writer. A speed >0 scales the recorded
// spacing between rows; speed <= 0 replays without delay.
func ReplayLog(ctx context.Context, r io.Reader, writer ReportWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var row telemetry.ReportRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				select {
				case <-ctx.Done():
					return n, ctx.Err()
				case <-time.After(diff):
				}
			}
		}
		if err := writer.WriteReport(row); err != nil {
			return n, err
		}
		n++
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its report rows.
func ReplayLogFile(ctx context.Context, path string, writer ReportWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
