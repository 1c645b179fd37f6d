package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
)

// greptimeClient is the part of the ingester client used here.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter forwards rows to GreptimeDB. Tables are created by the
// server on first write.
type GreptimeDBWriter struct {
	client       greptimeClient
	reportTable  string
	commandTable string
	timeout      time.Duration
	log          *slog.Logger
}

// NewGreptimeDBWriter connects to host (gRPC port 4001) and database.
func NewGreptimeDBWriter(host, database string, log *slog.Logger) (*GreptimeDBWriter, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return &GreptimeDBWriter{
		client:       client,
		reportTable:  telemetry.ReportTableName,
		commandTable: telemetry.CommandTableName,
		timeout:      5 * time.Second,
		log:          log,
	}, nil
}

// WriteReport inserts a single report row.
func (w *GreptimeDBWriter) WriteReport(row telemetry.ReportRow) error {
	return w.WriteReports([]telemetry.ReportRow{row})
}

// WriteReports inserts multiple report rows.
func (w *GreptimeDBWriter) WriteReports(rows []telemetry.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.reportTable)
	if err != nil {
		return err
	}
	if err := addColumns(tbl,
		tag("node", types.STRING),
		tag("tank_id", types.UINT8),
		field("sender", types.STRING),
		field("distance_cm", types.FLOAT64),
		field("battery_mv", types.UINT16),
		field("valid", types.BOOLEAN),
		field("at_risk", types.BOOLEAN),
		field("outcome", types.STRING),
	); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		var dist any
		if r.DistanceCM != nil {
			dist = *r.DistanceCM
		}
		if err := tbl.AddRow(r.Node, r.TankID, r.Sender, dist, r.BatteryMV, r.Valid, r.AtRisk, r.Outcome, r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(tbl, len(rows))
}

// WriteCommand inserts a command row.
func (w *GreptimeDBWriter) WriteCommand(row telemetry.CommandRow) error {
	tbl, err := table.New(w.commandTable)
	if err != nil {
		return err
	}
	if err := addColumns(tbl,
		tag("id", types.STRING),
		field("action", types.STRING),
		field("command", types.STRING),
		field("target", types.UINT8),
		field("duration_ms", types.INT64),
		field("ok", types.BOOLEAN),
		field("attempts", types.INT64),
		field("error", types.STRING),
	); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(row.ID, row.Action, row.Command, row.Target, row.DurationMS, row.OK, int64(row.Attempts), row.Error, row.Timestamp); err != nil {
		return err
	}
	return w.write(tbl, 1)
}

func (w *GreptimeDBWriter) write(tbl *table.Table, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.logger().Warn("greptimedb write failed", "rows", n, "err", err)
		return err
	}
	w.logger().Debug("greptimedb write", "rows", n)
	return nil
}

func (w *GreptimeDBWriter) logger() *slog.Logger {
	if w.log == nil {
		return slog.Default()
	}
	return w.log
}

type column struct {
	name  string
	typ   types.ColumnType
	isTag bool
}

func tag(name string, typ types.ColumnType) column   { return column{name: name, typ: typ, isTag: true} }
func field(name string, typ types.ColumnType) column { return column{name: name, typ: typ} }

func addColumns(tbl *table.Table, cols ...column) error {
	for _, c := range cols {
		var err error
		if c.isTag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return fmt.Errorf("column %s: %w", c.name, err)
		}
	}
	return nil
}
