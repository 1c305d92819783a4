// Package metrics centralizes the router's prometheus registry and the
// gauge/counter constructors each subsystem uses.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the shared registry a metrics-exposition endpoint would
// scrape. Components register their own gauges/counters/histograms into it
// at construction time.
type Registry struct {
	*prometheus.Registry
}

// New builds an empty registry with the default Go/process collectors.
func New() *Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(prometheus.NewGoCollector())
	r.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &Registry{Registry: r}
}

func (r *Registry) NewGauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	r.MustRegister(g)
	return g
}

func (r *Registry) NewCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	r.MustRegister(c)
	return c
}

func (r *Registry) NewGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	r.MustRegister(g)
	return g
}
