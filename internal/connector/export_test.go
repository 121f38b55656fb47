package connector

import "github.com/prometheus/client_golang/prometheus"

// CollectorOps — счётчик вызовов LOCAL-сборщика для проверок в тестах.
func CollectorOps(operation, result string) prometheus.Counter {
	return collectorOpsTotal.WithLabelValues("LOCAL", operation, result)
}
