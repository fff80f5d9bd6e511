package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_event_duration_sec",
	Help: "Total duration of moderation event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var violationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_violations",
	Help: "Number of violations recorded, by kind and applied severity",
}, []string{"kind", "severity"})

var lockdownCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_lockdowns",
	Help: "Number of guild lockdowns applied",
}, []string{"extended"})

var purgeMessageCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_purged_messages",
	Help: "Number of messages removed by purges, by method",
}, []string{"method"})

var attachmentScanCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_attachment_scans",
	Help: "Number of attachment content scans, by outcome",
}, []string{"outcome"})
