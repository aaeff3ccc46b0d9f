package forecast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var upstreamRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "weather_upstream_requests_total",
		Help: "Upstream provider calls by source and result",
	},
	[]string{"source", "result"},
)

func upstreamResult(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	upstreamRequests.WithLabelValues(source, result).Inc()
}
