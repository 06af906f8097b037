package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics exposes a tiny in-memory counter set for the push service.
type Metrics struct {
	requests         atomic.Int64
	noTargets        atomic.Int64
	tokenExchanges   atomic.Int64
	exchangeFailures atomic.Int64
	delivered        atomic.Int64
	failed           atomic.Int64
	suppressed       atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncRequests()         { m.requests.Add(1) }
func (m *Metrics) IncNoTargets()        { m.noTargets.Add(1) }
func (m *Metrics) IncTokenExchanges()   { m.tokenExchanges.Add(1) }
func (m *Metrics) IncExchangeFailures() { m.exchangeFailures.Add(1) }
func (m *Metrics) AddDelivered(n int)   { m.delivered.Add(int64(n)) }
func (m *Metrics) AddFailed(n int)      { m.failed.Add(int64(n)) }
func (m *Metrics) IncSuppressed()       { m.suppressed.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests         int64 `json:"requests"`
	NoTargets        int64 `json:"no_targets"`
	TokenExchanges   int64 `json:"token_exchanges"`
	ExchangeFailures int64 `json:"exchange_failures"`
	Delivered        int64 `json:"delivered"`
	Failed           int64 `json:"failed"`
	Suppressed       int64 `json:"suppressed"`
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Requests:         m.requests.Load(),
		NoTargets:        m.noTargets.Load(),
		TokenExchanges:   m.tokenExchanges.Load(),
		ExchangeFailures: m.exchangeFailures.Load(),
		Delivered:        m.delivered.Load(),
		Failed:           m.failed.Load(),
		Suppressed:       m.suppressed.Load(),
	}
}

// Handler exposes the counters as JSON.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
}
