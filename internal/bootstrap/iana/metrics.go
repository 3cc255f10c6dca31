package iana

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rdapd_bootstrap_refreshes_total",
		Help: "Bootstrap registry refresh attempts by outcome",
	}, []string{"outcome"})

	lastRefresh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rdapd_bootstrap_last_refresh_timestamp_seconds",
		Help: "Unix time of the last successful bootstrap refresh",
	})
)
