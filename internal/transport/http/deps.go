package http

import (
	"github.com/go-email-verification/internal/application/verification"
	"github.com/go-email-verification/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps holds everything the router needs beyond configuration.
type Deps struct {
	Verification verification.Service
	Metrics      *metrics.Metrics
	// Gatherer backs GET /metrics. The route is omitted when nil.
	Gatherer prometheus.Gatherer
}
