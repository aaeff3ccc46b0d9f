package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "weather_cache_lookups_total",
		Help: "Cache lookups by layer and result",
	},
	[]string{"layer", "result"},
)

func observe(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	lookups.WithLabelValues(layer, result).Inc()
}
