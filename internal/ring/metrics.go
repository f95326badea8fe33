package ring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors exposed by this driver's debug
// sidecar (SPEC_FULL.md domain stack). Grouped in one struct and registered
// against a private registry per driver, the way a production service
// isolates its own metrics instead of polluting the global default registry
// — important here since every driver process in a test shares one binary.
type Metrics struct {
	registry *prometheus.Registry

	TripsDispatched prometheus.Counter
	TripsDeclined   prometheus.Counter
	TripsCompleted  prometheus.Counter
	Elections       prometheus.Counter
	PositionGathers prometheus.Counter
	RingReconnects  prometheus.Counter
}

// NewMetrics builds and registers a fresh metric set, labeled with this
// driver's id so multiple driver processes scraped through one Prometheus
// job stay distinguishable.
func NewMetrics(driverID uint16) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"driver_id": strconv.Itoa(int(driverID))}

	m := &Metrics{
		registry: reg,
		TripsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ring_trips_dispatched_total",
			Help:        "Trips offered to this driver.",
			ConstLabels: labels,
		}),
		TripsDeclined: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ring_trips_declined_total",
			Help:        "Trip offers this driver declined.",
			ConstLabels: labels,
		}),
		TripsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ring_trips_completed_total",
			Help:        "Trips this driver completed.",
			ConstLabels: labels,
		}),
		Elections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ring_coordinator_elections_total",
			Help:        "NewCoordinator announcements originated by this driver.",
			ConstLabels: labels,
		}),
		PositionGathers: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ring_position_gathers_total",
			Help:        "CoordinatesRequest gathers initiated by this coordinator.",
			ConstLabels: labels,
		}),
		RingReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ring_reconnects_total",
			Help:        "Right-neighbor reconnect attempts.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.TripsDispatched, m.TripsDeclined, m.TripsCompleted,
		m.Elections, m.PositionGathers, m.RingReconnects)
	return m
}
