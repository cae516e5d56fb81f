// Package metrics, denetleyicinin operasyonel sayaçlarını Prometheus
// formatında dışa açar.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dlsupervisor"

// Metrics, uygulama ömrü boyunca tek bir kez oluşturulan Prometheus
// koleksiyonudur.
type Metrics struct {
	BansIssued       prometheus.Counter
	Pardons          prometheus.Counter
	VotesCast        prometheus.Counter
	RequestsFiled    prometheus.Counter
	RequestsExecuted prometheus.Counter
	ChildRestarts    prometheus.Counter
	OnlinePlayers    prometheus.Gauge
}

// New, tüm sayaçları ve göstergeleri kaydedip döner. registerer genellikle
// prometheus.DefaultRegisterer'dır; test izolasyonu için ayrı bir registry
// geçirilebilir.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		BansIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bans_issued_total",
			Help:      "Total number of players banned, including forbidden-command auto-bans.",
		}),
		Pardons: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pardons_total",
			Help:      "Total number of players pardoned, including sweeper auto-unbans.",
		}),
		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "Total number of votes recorded on command requests.",
		}),
		RequestsFiled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_filed_total",
			Help:      "Total number of community command requests filed.",
		}),
		RequestsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_executed_total",
			Help:      "Total number of command requests that crossed the vote threshold and were executed.",
		}),
		ChildRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "child_restarts_total",
			Help:      "Total number of times the supervised child process was (re)spawned.",
		}),
		OnlinePlayers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Current number of players online on the supervised server.",
		}),
	}
}

// Handler, /metrics için kullanılacak promhttp handler'ını döner.
func Handler() http.Handler {
	return promhttp.Handler()
}
