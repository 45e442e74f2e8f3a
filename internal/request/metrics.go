package request

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики менеджера запросов
var (
	// requestsSubmittedTotal — количество принятых запросов по типам.
	requestsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srm_requests_submitted_total",
		Help: "Общее количество принятых SRM-запросов",
	}, []string{"type"})

	// requestsFinishedTotal — количество завершённых запросов по типам и итоговому статусу.
	requestsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srm_requests_finished_total",
		Help: "Общее количество завершённых SRM-запросов",
	}, []string{"type", "status"})

	// requestsAbortedTotal — количество прерванных запросов и файлов.
	requestsAbortedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srm_requests_aborted_total",
		Help: "Общее количество операций прерывания",
	}, []string{"scope"})
)
