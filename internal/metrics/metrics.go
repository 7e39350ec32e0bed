package metrics

import (
	"strconv"
	"sync"

	"resortbook/internal/events"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "resortbook"

var (
	once sync.Once

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Availability checks by booking kind and result.",
		},
		[]string{"kind", "result"},
	)

	approvals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approval attempts by booking kind and result.",
		},
		[]string{"kind", "result"},
	)

	cascadeRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_rejections_total",
			Help:      "Pending bookings auto-rejected by an approval.",
		},
		[]string{"kind"},
	)

	statusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_changes_total",
			Help:      "Manual booking status changes.",
		},
		[]string{"kind", "status"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts by notice kind and result.",
		},
		[]string{"notice", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(availabilityChecks, approvals, cascadeRejections, statusChanges, notifications)
	})
}

// Subscribe feeds the counters from domain events.
func Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventAvailabilityChecked, func(e *events.Event) error {
		var p events.AvailabilityPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		result := strconv.FormatBool(p.Available)
		if p.Restricted {
			result = "restricted"
		}
		availabilityChecks.WithLabelValues(p.Kind, result).Inc()
		return nil
	})

	bus.Subscribe(events.EventBookingApproved, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		approvals.WithLabelValues(p.Kind, "approved").Inc()
		return nil
	})

	bus.Subscribe(events.EventApprovalConflict, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		approvals.WithLabelValues(p.Kind, "conflict").Inc()
		return nil
	})

	bus.Subscribe(events.EventBookingAutoRejected, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		cascadeRejections.WithLabelValues(p.Kind).Inc()
		return nil
	})

	bus.Subscribe(events.EventBookingStatusChanged, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		statusChanges.WithLabelValues(p.Kind, p.Status).Inc()
		return nil
	})
}

// IncNotification counts one delivery attempt.
func IncNotification(notice, result string) {
	notifications.WithLabelValues(notice, result).Inc()
}
