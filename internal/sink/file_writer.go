package sink

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
)

// FileWriter appends reports and commands to JSONL capture files.
type FileWriter struct {
	mu         sync.Mutex
	reportFile *os.File
	cmdFile    *os.File
	reportEnc  *json.Encoder
	cmdEnc     *json.Encoder
}

// NewFileWriter creates a FileWriter. commandPath may be empty to skip command rows.
func NewFileWriter(reportPath, commandPath string) (*FileWriter, error) {
	rf, err := os.OpenFile(reportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{reportFile: rf, reportEnc: json.NewEncoder(rf)}
	if commandPath != "" {
		cf, err := os.OpenFile(commandPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			rf.Close()
			return nil, err
		}
		fw.cmdFile = cf
		fw.cmdEnc = json.NewEncoder(cf)
	}
	return fw, nil
}

// WriteReport logs a single report row.
func (f *FileWriter) WriteReport(row telemetry.ReportRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reportEnc.Encode(row)
}

// WriteReports logs multiple report rows.
func (f *FileWriter) WriteReports(rows []telemetry.ReportRow) error {
	for _, r := range rows {
		if err := f.WriteReport(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCommand logs a command row, if enabled.
func (f *FileWriter) WriteCommand(row telemetry.CommandRow) error {
	if f.cmdEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cmdEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.reportFile != nil {
		if e := f.reportFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.cmdFile != nil {
		if e := f.cmdFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
