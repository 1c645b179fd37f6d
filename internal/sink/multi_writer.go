package sink

import (
	"errors"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
)

// MultiWriter fans rows out to several writers. Every writer is attempted;
// errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter, skipping nil entries.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// WriteReport sends a report row to all writers.
func (mw *MultiWriter) WriteReport(row telemetry.ReportRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteReport(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteReports sends multiple report rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteReports(rows []telemetry.ReportRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchReportWriter); ok {
			if err := bw.WriteReports(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteReport(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteCommand sends a command row to all writers.
func (mw *MultiWriter) WriteCommand(row telemetry.CommandRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteCommand(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
