package tasks

import "github.com/prometheus/client_golang/prometheus"

var operationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tasks_operations_total",
		Help: "Task manager operations by outcome code",
	},
	[]string{"op", "result"},
)

func init() {
	prometheus.MustRegister(operationsTotal)
}
