// Package sink forwards accepted reports and dispatched commands to outputs.
package sink

import "github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"

// ReportWriter receives accepted sensor reports.
type ReportWriter interface {
	WriteReport(telemetry.ReportRow) error
}

// CommandWriter receives dispatched commands.
type CommandWriter interface {
	WriteCommand(telemetry.CommandRow) error
}

// Writer handles both row kinds.
type Writer interface {
	ReportWriter
	CommandWriter
}

// Optional: report writers may support batch mode.
type batchReportWriter interface {
	WriteReports([]telemetry.ReportRow) error
}

// Discard drops every row.
type Discard struct{}

func (Discard) WriteReport(telemetry.ReportRow) error   { return nil }
func (Discard) WriteCommand(telemetry.CommandRow) error { return nil }
