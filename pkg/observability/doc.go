/*
Package observability turns the service lifecycle hooks into Prometheus metrics
and structured log lines.

Both are plain domain.LifecycleHooks values and can be combined with Merge:

	metrics, _ := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := metrics.Hooks().Merge(observability.LoggingHooks(logger))
*/
package observability
