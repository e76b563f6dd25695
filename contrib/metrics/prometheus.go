// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package metrics wraps an htcore.Handler with Prometheus request counters and latency
// histograms, one of the observability collaborators the specification places outside
// the core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hexinfra/htcore/htcore"
)

// Collector holds the Prometheus instruments a Middleware records into.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector builds and registers a Collector's instruments against reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "htcore_requests_total",
			Help: "Total number of requests dispatched through htcore, by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "htcore_request_duration_seconds",
			Help:    "Request handling latency in seconds, from dispatch to handler return.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(c.requestsTotal, c.requestDuration)
	return c
}

// Middleware returns an htcore.Middleware that records one observation per request.
func (c *Collector) Middleware() htcore.Middleware {
	return func(next htcore.Handler) htcore.Handler {
		return func(head htcore.RequestHead, ctx *htcore.RequestContext, body *htcore.RequestConcludingReader, sender *htcore.ResponseSender) error {
			start := time.Now()
			err := next(head, ctx, body, sender)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			c.requestsTotal.WithLabelValues(outcome).Inc()
			c.requestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
