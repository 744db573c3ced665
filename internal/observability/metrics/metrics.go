package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics exposes counters/histograms for the scheduling core.
// All observe methods are nil-safe so tests can run without a registry.
type SchedulerMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	sweepCancelled   prometheus.Counter
	bookingLatency   prometheus.Histogram
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "State machine transitions by operation and outcome",
		}, []string{"operation", "result"}),
		sweepCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "scheduling",
			Name:      "sweep_cancelled_total",
			Help:      "Appointments auto-cancelled by the sweep",
		}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "turnos",
			Subsystem: "scheduling",
			Name:      "booking_latency_seconds",
			Help:      "Latency of the booking critical section",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.sweepCancelled, m.bookingLatency)
	return m
}

func (m *SchedulerMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *SchedulerMetrics) ObserveTransition(operation, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(operation, result).Inc()
}

func (m *SchedulerMetrics) ObserveSweepCancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepCancelled.Add(float64(n))
}

func (m *SchedulerMetrics) ObserveBookingLatency(seconds float64) {
	if m == nil {
		return
	}
	m.bookingLatency.Observe(seconds)
}
