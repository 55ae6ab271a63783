package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ProxyRequests  prometheus.Counter
	UpstreamErrors prometheus.Counter
	StreamsStarted prometheus.Counter
	StreamFlushes  prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ProxyRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "viper",
				Name:      "llm_proxy_requests_total",
				Help:      "Total chat completion requests forwarded upstream",
			}),
			UpstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "viper",
				Name:      "llm_upstream_errors_total",
				Help:      "Total upstream failures (transport or non-2xx)",
			}),
			StreamsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "viper",
				Name:      "llm_streams_started_total",
				Help:      "Total streaming relays opened",
			}),
			StreamFlushes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "viper",
				Name:      "llm_stream_flushes_total",
				Help:      "Total assistant replies persisted at stream end",
			}),
		}
		prometheus.MustRegister(global.ProxyRequests, global.UpstreamErrors, global.StreamsStarted, global.StreamFlushes)
	})
	return global
}
