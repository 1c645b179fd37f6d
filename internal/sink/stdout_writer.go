// Writers printing rows to STDOUT
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
)

// StdoutWriter prints one human-readable line per row.
type StdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStdoutWriter creates a StdoutWriter writing to os.Stdout.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout}
}

// WriteReport outputs a single report row.
func (w *StdoutWriter) WriteReport(row telemetry.ReportRow) error {
	dist := "invalid"
	if row.DistanceCM != nil {
		dist = fmt.Sprintf("%.1fcm", *row.DistanceCM)
	}
	risk := ""
	if row.AtRisk {
		risk = " AT RISK"
	}
	outcome := ""
	if row.Outcome != "" {
		outcome = " -> " + row.Outcome
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s [%s] tank %d from %s: %s battery=%dmV%s%s\n",
		row.Timestamp.Format("15:04:05"), row.Node, row.TankID, row.Sender, dist, row.BatteryMV, risk, outcome)
	return err
}

// WriteCommand outputs a single command row.
func (w *StdoutWriter) WriteCommand(row telemetry.CommandRow) error {
	status := "ok"
	if !row.OK {
		status = "FAILED: " + row.Error
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s command %s (%s target=%d) %s\n",
		row.Timestamp.Format("15:04:05"), row.Action, row.Command, row.Target, status)
	return err
}

// JSONStdoutWriter prints rows as JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// WriteReport outputs a report row in JSON format.
func (w *JSONStdoutWriter) WriteReport(row telemetry.ReportRow) error {
	return w.emit(row)
}

// WriteCommand outputs a command row in JSON format.
func (w *JSONStdoutWriter) WriteCommand(row telemetry.CommandRow) error {
	return w.emit(row)
}

func (w *JSONStdoutWriter) emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
