// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	pages   prometheus.Counter
	keys    prometheus.Counter
	values  prometheus.Counter
	retries prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forkoff",
			Name:      "crawl_pages_fetched",
			Help:      "Number of key pages fetched from the node",
		}),
		keys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forkoff",
			Name:      "crawl_keys_fetched",
			Help:      "Number of storage keys enumerated",
		}),
		values: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forkoff",
			Name:      "crawl_values_fetched",
			Help:      "Number of storage values fetched",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forkoff",
			Name:      "crawl_retries",
			Help:      "Number of RPC calls retried after a transient failure",
		}),
	}

	for _, c := range []prometheus.Counter{m.pages, m.keys, m.values, m.retries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
