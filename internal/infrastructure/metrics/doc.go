// Package metrics holds the gateway's Prometheus collectors.
//
// Collectors are registered with the default registry at init via promauto
// and exposed by the API server on /metrics. Components record through the
// helper functions so label values stay consistent:
//
//	start := time.Now()
//	reading, err := link.Poll(ctx)
//	metrics.RecordPoll(time.Since(start), err)
package metrics
