package handlers

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricsListRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shop_list_requests_total",
	Help: "Number of list requests served, by resource and response status",
}, []string{"resource", "status"})

var metricsListDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "shop_list_request_duration_seconds",
	Help:    "Time spent answering list requests, by resource",
	Buckets: prometheus.DefBuckets,
}, []string{"resource"})

func observeList(resource string, status int, start time.Time) {
	metricsListRequests.WithLabelValues(resource, strconv.Itoa(status)).Inc()
	metricsListDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())
}
