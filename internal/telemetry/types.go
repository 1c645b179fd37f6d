// Row types exported to sinks, with greptime column roles noted per field
package telemetry

import (
	"os"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// ReportRow is one accepted sensor report as seen by a receiving node.
type ReportRow struct {
	Node       string    `json:"node"`        // TAG
	TankID     uint8     `json:"tank_id"`     // TAG
	Sender     string    `json:"sender"`      // FIELD
	DistanceCM *float64  `json:"distance_cm"` // FIELD, null when invalid
	BatteryMV  uint16    `json:"battery_mv"`  // FIELD
	Valid      bool      `json:"valid"`       // FIELD
	AtRisk     bool      `json:"at_risk"`     // FIELD
	Outcome    string    `json:"outcome"`     // FIELD, alarm node only
	Timestamp  time.Time `json:"ts"`          // TIME INDEX
}

// NewReportRow builds a row from a decoded report.
func NewReportRow(node, sender string, r protocol.SensorReport, ts time.Time) ReportRow {
	row := ReportRow{
		Node:      node,
		TankID:    r.Tank,
		Sender:    sender,
		BatteryMV: r.BatteryMV,
		Valid:     r.Valid(),
		AtRisk:    r.AtRisk(),
		Timestamp: ts,
	}
	if cm, ok := r.DistanceCM(); ok {
		row.DistanceCM = &cm
	}
	return row
}

// Report rebuilds the wire report this row was made from.
func (r ReportRow) Report() protocol.SensorReport {
	var mm uint16
	if r.DistanceCM != nil && *r.DistanceCM > 0 {
		mm = uint16(*r.DistanceCM*10 + 0.5)
	}
	return protocol.NewSensorReport(r.TankID, mm, r.BatteryMV)
}

// CommandRow records one dashboard action and its transport outcome.
type CommandRow struct {
	ID         string    `json:"id"`          // TAG
	Action     string    `json:"action"`      // FIELD
	Command    string    `json:"command"`     // FIELD
	Target     uint8     `json:"target"`      // FIELD
	DurationMS int64     `json:"duration_ms"` // FIELD
	OK         bool      `json:"ok"`          // FIELD
	Attempts   int       `json:"attempts"`    // FIELD
	Error      string    `json:"error"`       // FIELD
	Timestamp  time.Time `json:"ts"`          // TIME INDEX
}

// ReportTableName holds the table used for report rows. It defaults to
// "tank_reports" and can be overridden with TANKMON_REPORT_TABLE.
var ReportTableName = envOr("TANKMON_REPORT_TABLE", "tank_reports")

// CommandTableName holds the table used for command rows. It defaults to
// "tank_commands" and can be overridden with TANKMON_COMMAND_TABLE.
var CommandTableName = envOr("TANKMON_COMMAND_TABLE", "tank_commands")

func (ReportRow) TableName() string  { return ReportTableName }
func (CommandRow) TableName() string { return CommandTableName }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
