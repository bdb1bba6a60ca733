// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/knxstat/pkg/knxnet"
)

// PrometheusCollector exports a Collector's counters.
type PrometheusCollector struct {
	source *Collector

	framesSent     *prometheus.Desc
	framesReceived *prometheus.Desc
	bytesSent      *prometheus.Desc
	bytesReceived  *prometheus.Desc
	errors         *prometheus.Desc
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector wraps c for registration with a prometheus registry
func NewPrometheusCollector(c *Collector, namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		source: c,
		framesSent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_sent_total"),
			"Frames sent, by service type.", []string{"service"}, nil),
		framesReceived: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_received_total"),
			"Frames received, by service type.", []string{"service"}, nil),
		bytesSent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bytes_sent_total"),
			"Bytes sent including per-frame overhead.", nil, nil),
		bytesReceived: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bytes_received_total"),
			"Bytes received including per-frame overhead.", nil, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_total"),
			"Send, receive and decode errors.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.framesSent
	ch <- p.framesReceived
	ch <- p.bytesSent
	ch <- p.bytesReceived
	ch <- p.errors
}

// Collect implements prometheus.Collector
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.source.Snapshot()

	for st, n := range s.Sent {
		ch <- prometheus.MustNewConstMetric(p.framesSent, prometheus.CounterValue, float64(n), serviceLabel(st))
	}
	for st, n := range s.Received {
		ch <- prometheus.MustNewConstMetric(p.framesReceived, prometheus.CounterValue, float64(n), serviceLabel(st))
	}
	ch <- prometheus.MustNewConstMetric(p.bytesSent, prometheus.CounterValue, float64(s.BytesSent))
	ch <- prometheus.MustNewConstMetric(p.bytesReceived, prometheus.CounterValue, float64(s.BytesReceived))
	ch <- prometheus.MustNewConstMetric(p.errors, prometheus.CounterValue, float64(s.Errors))
}

func serviceLabel(st knxnet.ServiceType) string {
	if st == ServiceOther {
		return "other"
	}
	return knxnet.FormatServiceType(st)
}
