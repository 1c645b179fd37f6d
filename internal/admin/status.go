package admin

import (
	"math"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/freshness"
)

// TankJSON is one entry of the status document.
type TankJSON struct {
	TankID          uint8    `json:"tank_id"`
	DistanceCM      *float64 `json:"distance_cm"`
	AtRisk          bool     `json:"at_risk"`
	LastUpdateISO   *string  `json:"last_update_iso"`
	LastSeenSecsAgo *int64   `json:"last_seen_secs_ago"`
	BatteryMV       uint16   `json:"battery_mV"`
	Offline         bool     `json:"offline"`
}

// StatusJSON is the document served at /api/status and pushed on /api/events.
type StatusJSON struct {
	ServerTimeISO string     `json:"server_time_iso"`
	NTPSynced     bool       `json:"ntp_synced"`
	WiFiChannel   int        `json:"wifi_channel"`
	Tanks         []TankJSON `json:"tanks"`
}

const isoLayout = "2006-01-02T15:04:05Z"

// BuildStatus renders the tracker snapshot. Distances are rounded to 0.1 cm.
func BuildStatus(t *freshness.Tracker, channel int) StatusJSON {
	now := t.Now()
	st := StatusJSON{NTPSynced: t.Synced(), WiFiChannel: channel}
	if st.NTPSynced {
		st.ServerTimeISO = now.UTC().Format(isoLayout)
	}
	for _, s := range t.Snapshot() {
		tj := TankJSON{TankID: s.TankID, AtRisk: s.AtRisk, BatteryMV: s.BatteryMV, Offline: s.Offline}
		if s.DistanceCM != nil {
			d := math.Round(*s.DistanceCM*10) / 10
			tj.DistanceCM = &d
		}
		if s.LastUpdate != nil {
			iso := s.LastUpdate.UTC().Format(isoLayout)
			tj.LastUpdateISO = &iso
		}
		if s.Age != nil {
			secs := int64(*s.Age / time.Second)
			tj.LastSeenSecsAgo = &secs
		}
		st.Tanks = append(st.Tanks, tj)
	}
	return st
}
