// Package metrics exposes Prometheus instrumentation shared by all node roles.
// Every helper is a no-op until Init has run.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "tankmon_"

var (
	registerOnce sync.Once

	packetsReceived *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec

	sendsTotal  *prometheus.CounterVec
	sendLatency *prometheus.HistogramVec

	alarmEvents    *prometheus.CounterVec
	actuatorActive prometheus.Gauge

	tankDistance *prometheus.GaugeVec
	tankBattery  *prometheus.GaugeVec
	tankOffline  *prometheus.GaugeVec

	commandsTotal *prometheus.CounterVec
	sensorSamples prometheus.Histogram
)

// Init creates and registers all collectors on reg. A nil reg uses the
// default registerer. Only the first call has any effect.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		packetsReceived = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "packets_received_total",
				Help: "Validated packets by kind",
			},
			[]string{"kind"},
		)
		packetsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "packets_dropped_total",
				Help: "Dropped packets by reason",
			},
			[]string{"reason"},
		)
		sendsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sends_total",
				Help: "Datagram sends by peer and result",
			},
			[]string{"peer", "result"},
		)
		sendLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "send_latency_seconds",
				Help:    "Time until a send resolved, including a retry",
				Buckets: []float64{.01, .025, .05, .1, .2, .3, .5, .75, 1},
			},
			[]string{"peer"},
		)
		alarmEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Alarm state machine transitions by event",
			},
			[]string{"event"},
		)
		actuatorActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "actuator_active",
			Help: "1 while the siren is energized",
		})
		tankDistance = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tank_distance_cm",
				Help: "Last reported distance per tank",
			},
			[]string{"tank"},
		)
		tankBattery = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tank_battery_millivolts",
				Help: "Last reported battery voltage per tank",
			},
			[]string{"tank"},
		)
		tankOffline = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tank_offline",
				Help: "1 when a tank has not reported within the offline threshold",
			},
			[]string{"tank"},
		)
		commandsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Dashboard actions by result",
			},
			[]string{"action", "result"},
		)
		sensorSamples = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "sensor_window_samples",
			Help:    "Accepted samples per sampling window",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		})

		reg.MustRegister(
			packetsReceived,
			packetsDropped,
			sendsTotal,
			sendLatency,
			alarmEvents,
			actuatorActive,
			tankDistance,
			tankBattery,
			tankOffline,
			commandsTotal,
			sensorSamples,
		)
	})
}

// IncPacketReceived counts a validated packet.
func IncPacketReceived(kind string) {
	if packetsReceived != nil {
		packetsReceived.WithLabelValues(kind).Inc()
	}
}

// IncPacketDropped counts a packet dropped for reason.
func IncPacketDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if packetsDropped != nil {
		packetsDropped.WithLabelValues(reason).Inc()
	}
}

// ObserveSend records the outcome of a send to peer.
func ObserveSend(peer, result string, d time.Duration) {
	if sendsTotal != nil {
		sendsTotal.WithLabelValues(peer, result).Inc()
	}
	if sendLatency != nil {
		sendLatency.WithLabelValues(peer).Observe(d.Seconds())
	}
}

// IncAlarmEvent counts an alarm transition.
func IncAlarmEvent(event string) {
	if alarmEvents != nil {
		alarmEvents.WithLabelValues(event).Inc()
	}
}

// SetActuator mirrors the actuator output.
func SetActuator(active bool) {
	if actuatorActive == nil {
		return
	}
	if active {
		actuatorActive.Set(1)
	} else {
		actuatorActive.Set(0)
	}
}

// SetTankReading records the latest reading for tank. A nil distance clears the gauge.
func SetTankReading(tank uint8, distanceCM *float64, batteryMV uint16) {
	label := strconv.Itoa(int(tank))
	if tankDistance != nil {
		if distanceCM != nil {
			tankDistance.WithLabelValues(label).Set(*distanceCM)
		} else {
			tankDistance.DeleteLabelValues(label)
		}
	}
	if tankBattery != nil {
		tankBattery.WithLabelValues(label).Set(float64(batteryMV))
	}
}

// SetTankOffline records the offline classification for tank.
func SetTankOffline(tank uint8, offline bool) {
	if tankOffline == nil {
		return
	}
	v := 0.0
	if offline {
		v = 1
	}
	tankOffline.WithLabelValues(strconv.Itoa(int(tank))).Set(v)
}

// IncCommand counts a dashboard action.
func IncCommand(action, result string) {
	if commandsTotal != nil {
		commandsTotal.WithLabelValues(action, result).Inc()
	}
}

// ObserveSensorSamples records how many samples a window accepted.
func ObserveSensorSamples(n int) {
	if sensorSamples != nil {
		sensorSamples.Observe(float64(n))
	}
}
