package handlers

import "github.com/Conceptual-Machines/melodygen-api/internal/metrics"

// Global metrics instance
var sentryMetrics = metrics.NewSentryMetrics()
