// Package metrics 暴露 Prometheus 指标服务。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}

// StartMetricsServerWith 以指定 handler 启动指标服务器，
// 用于暴露独立 registry 的采集器。
func StartMetricsServerWith(addr string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
