package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
)

type collectWriter struct {
	reports  []telemetry.ReportRow
	commands []telemetry.CommandRow
	err      error
}

func (c *collectWriter) WriteReport(r telemetry.ReportRow) error {
	c.reports = append(c.reports, r)
	return c.err
}

func (c *collectWriter) WriteCommand(r telemetry.CommandRow) error {
	c.commands = append(c.commands, r)
	return c.err
}

func distance(v float64) *float64 { return &v }

func sampleReport() telemetry.ReportRow {
	return telemetry.ReportRow{
		Node:       "alarm",
		TankID:     1,
		Sender:     "24:6f:28:aa:bb:01",
		DistanceCM: distance(42.5),
		BatteryMV:  3700,
		Valid:      true,
		AtRisk:     true,
		Outcome:    "triggered",
		Timestamp:  time.Unix(100, 0).UTC(),
	}
}

func sampleCommand() telemetry.CommandRow {
	return telemetry.CommandRow{
		ID:        "c1",
		Action:    "test",
		Command:   "force_on",
		Target:    255,
		OK:        false,
		Attempts:  2,
		Error:     "ack timeout",
		Timestamp: time.Unix(100, 0).UTC(),
	}
}

func TestMultiWriterJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &collectWriter{}
	b := &collectWriter{err: boom}
	mw := NewMultiWriter(a, nil, b)

	if err := mw.WriteReport(sampleReport()); !errors.Is(err, boom) {
		t.Fatalf("WriteReport err = %v, want boom", err)
	}
	if err := mw.WriteCommand(sampleCommand()); !errors.Is(err, boom) {
		t.Fatalf("WriteCommand err = %v, want boom", err)
	}
	if len(a.reports) != 1 || len(b.reports) != 1 {
		t.Fatalf("every writer should see the report: %d %d", len(a.reports), len(b.reports))
	}
	if len(a.commands) != 1 || len(b.commands) != 1 {
		t.Fatalf("every writer should see the command: %d %d", len(a.commands), len(b.commands))
	}
}

func TestMultiWriterBatch(t *testing.T) {
	a := &collectWriter{}
	mw := NewMultiWriter(a)
	rows := []telemetry.ReportRow{sampleReport(), sampleReport()}
	if err := mw.WriteReports(rows); err != nil {
		t.Fatalf("WriteReports: %v", err)
	}
	if len(a.reports) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(a.reports))
	}
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	reports := filepath.Join(dir, "reports.jsonl")
	commands := filepath.Join(dir, "commands.jsonl")

	fw, err := NewFileWriter(reports, commands)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	if err := fw.WriteReports([]telemetry.ReportRow{sampleReport(), sampleReport()}); err != nil {
		t.Fatalf("WriteReports: %v", err)
	}
	if err := fw.WriteCommand(sampleCommand()); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(reports)
	if err != nil {
		t.Fatalf("read reports: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 report lines, got %d", len(lines))
	}
	var got telemetry.ReportRow
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.DistanceCM == nil || *got.DistanceCM != 42.5 || got.Outcome != "triggered" {
		t.Fatalf("unexpected report: %#v", got)
	}

	data, err = os.ReadFile(commands)
	if err != nil {
		t.Fatalf("read commands: %v", err)
	}
	var cmd telemetry.CommandRow
	if err := json.Unmarshal(bytes.TrimSpace(data), &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd.Error != "ack timeout" || cmd.Attempts != 2 {
		t.Fatalf("unexpected command: %#v", cmd)
	}
}

func TestFileWriterWithoutCommands(t *testing.T) {
	fw, err := NewFileWriter(filepath.Join(t.TempDir(), "r.jsonl"), "")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer fw.Close()
	if err := fw.WriteCommand(sampleCommand()); err != nil {
		t.Fatalf("WriteCommand should be a no-op: %v", err)
	}
}

func TestStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &StdoutWriter{out: &buf}
	invalid := sampleReport()
	invalid.DistanceCM = nil
	invalid.AtRisk = false
	invalid.Outcome = ""

	for _, r := range []telemetry.ReportRow{sampleReport(), invalid} {
		if err := w.WriteReport(r); err != nil {
			t.Fatalf("WriteReport: %v", err)
		}
	}
	if err := w.WriteCommand(sampleCommand()); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	sc := bufio.NewScanner(&buf)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "42.5cm") || !strings.Contains(lines[0], "AT RISK") || !strings.Contains(lines[0], "-> triggered") {
		t.Fatalf("unexpected report line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "invalid") || strings.Contains(lines[1], "AT RISK") {
		t.Fatalf("unexpected invalid line: %q", lines[1])
	}
	if !strings.Contains(lines[2], "FAILED: ack timeout") {
		t.Fatalf("unexpected command line: %q", lines[2])
	}
}

func TestJSONStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}
	if err := w.WriteReport(sampleReport()); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["tank_id"] != float64(1) || m["node"] != "alarm" {
		t.Fatalf("unexpected json: %v", m)
	}
}

type mockGreptimeClient struct {
	tables []*table.Table
	err    error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, m.err
}

func TestGreptimeWriterReports(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, reportTable: "tank_reports", timeout: time.Second}

	invalid := sampleReport()
	invalid.DistanceCM = nil
	if err := w.WriteReports([]telemetry.ReportRow{sampleReport(), invalid}); err != nil {
		t.Fatalf("WriteReports: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected one table write, got %d", len(m.tables))
	}
	rows := m.tables[0].GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	schema := rows.Schema
	if schema[0].ColumnName != "node" || schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("unexpected first column: %+v", schema[0])
	}
	if schema[len(schema)-1].SemanticType != gpb.SemanticType_TIMESTAMP {
		t.Fatalf("last column should be the time index: %+v", schema[len(schema)-1])
	}
	if got := rows.Rows[0].Values[3].GetF64Value(); got != 42.5 {
		t.Fatalf("distance_cm = %v, want 42.5", got)
	}
	if got := rows.Rows[0].Values[0].GetStringValue(); got != "alarm" {
		t.Fatalf("node = %q", got)
	}
}

func TestGreptimeWriterCommand(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, commandTable: "tank_commands", timeout: time.Second}
	if err := w.WriteCommand(sampleCommand()); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected a table write")
	}
	if got := m.tables[0].GetRows().Rows[0].Values[0].GetStringValue(); got != "c1" {
		t.Fatalf("id = %q, want c1", got)
	}
}

func TestGreptimeWriterPropagatesError(t *testing.T) {
	boom := errors.New("unavailable")
	w := &GreptimeDBWriter{client: &mockGreptimeClient{err: boom}, reportTable: "tank_reports", timeout: time.Second}
	if err := w.WriteReport(sampleReport()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestReplayLog(t *testing.T) {
	rows := []telemetry.ReportRow{sampleReport(), sampleReport()}
	rows[1].TankID = 2
	rows[1].Timestamp = rows[0].Timestamp.Add(time.Second)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &collectWriter{}
	n, err := ReplayLog(context.Background(), &buf, cw, 0)
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if n != 2 || len(cw.reports) != 2 {
		t.Fatalf("expected 2 rows, got n=%d collected=%d", n, len(cw.reports))
	}
	if cw.reports[1].TankID != 2 {
		t.Fatalf("row order mismatch: %+v", cw.reports)
	}
}

func TestReplayLogCancelled(t *testing.T) {
	rows := []telemetry.ReportRow{sampleReport(), sampleReport()}
	rows[1].Timestamp = rows[0].Timestamp.Add(time.Hour)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cw := &collectWriter{}
	n, err := ReplayLog(ctx, &buf, cw, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row before cancel, got %d", n)
	}
}

func TestReplayLogFileMissing(t *testing.T) {
	if _, err := ReplayLogFile(context.Background(), filepath.Join(t.TempDir(), "none.jsonl"), Discard{}, 0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
