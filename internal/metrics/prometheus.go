package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "rtg_maker_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	quotesPlaced := newCounter("quotes_placed_total", "Total quote orders inserted.")
	quotesSuppressed := newCounter("quotes_suppressed_total", "Total quote inserts suppressed by risk limits.")
	reprices := newCounter("reprices_total", "Total cancel/replace quote sequences.")
	hedgesPlaced := newCounter("hedges_placed_total", "Total hedge orders sent.")
	hedgesCapped := newCounter("hedges_capped_total", "Total hedge orders capped or denied by the Future limit.")
	fillsApplied := newCounter("fills_applied_total", "Total fills applied to the position.")
	duplicateFills := newCounter("duplicate_fills_total", "Total retransmitted fills dropped.")
	gatewayRejects := newCounter("gateway_rejects_total", "Total exchange order rejections.")
	feedReconnects := newCounter("feed_reconnects_total", "Total feed reconnections.")
	killSwitch := newCounter("kill_switch_engaged_total", "Total kill switch engagements after feed loss.")

	m := &Metrics{
		QuotesPlaced:      promCounter{quotesPlaced},
		QuotesSuppressed:  promCounter{quotesSuppressed},
		Reprices:          promCounter{reprices},
		HedgesPlaced:      promCounter{hedgesPlaced},
		HedgesCapped:      promCounter{hedgesCapped},
		FillsApplied:      promCounter{fillsApplied},
		DuplicateFills:    promCounter{duplicateFills},
		GatewayRejects:    promCounter{gatewayRejects},
		FeedReconnects:    promCounter{feedReconnects},
		KillSwitchEngaged: promCounter{killSwitch},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
