package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for Bamboo client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bamboo_client_requests_total",
		Help: "Total Bamboo HTTP requests by method and status",
	}, []string{"method", "status"})

	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bamboo_client_pages_total",
		Help: "Total result pages fetched by resource",
	}, []string{"resource"})

	paginationAbortsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bamboo_client_pagination_aborts_total",
		Help: "Iterations stopped because the server echoed an earlier start-index than requested",
	}, []string{"resource"})
)
