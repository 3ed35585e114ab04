package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// telemetry holds process-wide connection counters, written out in the
// Prometheus text format. Everything is gated on EnablePrometheusMetrics
// so the observe hooks cost one RLock when disabled.
type telemetry struct {
	enabled bool
	mu      sync.RWMutex

	openConns     float64
	openedTotal   map[string]uint64
	closedTotal   map[string]uint64
	messagesTotal map[string]uint64
	bytesTotal    map[string]uint64
	dialFailures  map[string]uint64
	dialSum       map[string]float64
	dialCount     map[string]uint64
}

var (
	metricsMu sync.RWMutex
	metrics   = telemetry{}
)

func EnablePrometheusMetrics() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metrics.enabled {
		return
	}
	metrics.openedTotal = make(map[string]uint64)
	metrics.closedTotal = make(map[string]uint64)
	metrics.messagesTotal = make(map[string]uint64)
	metrics.bytesTotal = make(map[string]uint64)
	metrics.dialFailures = make(map[string]uint64)
	metrics.dialSum = make(map[string]float64)
	metrics.dialCount = make(map[string]uint64)
	metrics.enabled = true
}

// StartMetricsServer serves /metrics on addr until ctx is done.
func StartMetricsServer(ctx context.Context, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty metrics address")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metricsHandler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// observeConnOpen counts a connection reaching Open. role is "client" for
// dialed connections and "server" for accepted ones.
func observeConnOpen(role string) {
	metricsMu.RLock()
	if !metrics.enabled {
		metricsMu.RUnlock()
		return
	}
	metrics.mu.Lock()
	metricsMu.RUnlock()
	defer metrics.mu.Unlock()
	metrics.openConns++
	metrics.openedTotal[fmt.Sprintf("role=%s", role)]++
}

// observeConnClosed counts a connection reaching Closed. kind is "clean"
// for a negotiated shutdown, "local" when this side initiated it and
// "abnormal" for a frameless drop.
func observeConnClosed(role, kind string) {
	metricsMu.RLock()
	if !metrics.enabled {
		metricsMu.RUnlock()
		return
	}
	metrics.mu.Lock()
	metricsMu.RUnlock()
	defer metrics.mu.Unlock()
	if metrics.openConns > 0 {
		metrics.openConns--
	}
	metrics.closedTotal[fmt.Sprintf("role=%s,kind=%s", role, kind)]++
}

func observeMessage(role, dir string, t MessageType, n int) {
	metricsMu.RLock()
	if !metrics.enabled {
		metricsMu.RUnlock()
		return
	}
	metrics.mu.Lock()
	metricsMu.RUnlock()
	defer metrics.mu.Unlock()
	metrics.messagesTotal[fmt.Sprintf("role=%s,dir=%s,type=%s", role, dir, t)]++
	metrics.bytesTotal[fmt.Sprintf("role=%s,dir=%s", role, dir)] += uint64(n)
}

func observeDial(host string, d time.Duration) {
	metricsMu.RLock()
	if !metrics.enabled {
		metricsMu.RUnlock()
		return
	}
	metrics.mu.Lock()
	metricsMu.RUnlock()
	defer metrics.mu.Unlock()
	k := fmt.Sprintf("host=%s", host)
	metrics.dialCount[k]++
	metrics.dialSum[k] += d.Seconds()
}

func observeDialFailure(host string, err error) {
	metricsMu.RLock()
	if !metrics.enabled {
		metricsMu.RUnlock()
		return
	}
	metrics.mu.Lock()
	metricsMu.RUnlock()
	defer metrics.mu.Unlock()
	metrics.dialFailures[fmt.Sprintf("host=%s,reason=%s", host, failureReason(err))]++
}

// failureReason buckets a dial failure for the failure counter. The
// unified vocabulary is checked first; the rest is guessed from the
// transport's message.
func failureReason(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	if errors.Is(err, ErrInvalidURL) {
		return "url"
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "timeout") || strings.Contains(e, "deadline"):
		return "timeout"
	case strings.Contains(e, "tls") || strings.Contains(e, "x509") || strings.Contains(e, "certificate"):
		return "tls"
	case strings.Contains(e, "dns") || strings.Contains(e, "no such host"):
		return "dns"
	case strings.Contains(e, "refused"):
		return "refused"
	default:
		return "other"
	}
}

func metricsHandler(w http.ResponseWriter, _ *http.Request) {
	metricsMu.RLock()
	enabled := metrics.enabled
	metricsMu.RUnlock()
	if !enabled {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("# metrics disabled\n"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	metrics.mu.RLock()
	defer metrics.mu.RUnlock()

	fmt.Fprintf(w, "wsbridge_open_connections %.0f\n", metrics.openConns)
	writeCounterVec(w, "wsbridge_connections_opened_total", metrics.openedTotal)
	writeCounterVec(w, "wsbridge_connections_closed_total", metrics.closedTotal)
	writeCounterVec(w, "wsbridge_messages_total", metrics.messagesTotal)
	writeCounterVec(w, "wsbridge_bytes_total", metrics.bytesTotal)
	writeCounterVec(w, "wsbridge_dial_failures_total", metrics.dialFailures)
	writeSummaryAsCountAndSum(w, "wsbridge_dial_duration_seconds", metrics.dialCount, metrics.dialSum)
}

func writeCounterVec(w http.ResponseWriter, name string, data map[string]uint64) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s{%s} %d\n", name, toPromLabels(k), data[k])
	}
}

func writeSummaryAsCountAndSum(w http.ResponseWriter, name string, counts map[string]uint64, sums map[string]float64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		labels := toPromLabels(k)
		fmt.Fprintf(w, "%s_count{%s} %d\n", name, labels, counts[k])
		fmt.Fprintf(w, "%s_sum{%s} %f\n", name, labels, sums[k])
	}
}

func toPromLabels(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		parts[i] = fmt.Sprintf("%s=\"%s\"", kv[0], strings.ReplaceAll(kv[1], "\"", "\\\""))
	}
	return strings.Join(parts, ",")
}
