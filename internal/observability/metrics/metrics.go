package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type routeKey struct {
	handler string
	method  string
}

type messageKey struct {
	intent string
	result string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu            sync.Mutex
	requests      map[requestKey]uint64
	requestErrors map[routeKey]uint64
	latency       map[routeKey]*histogram
	messages      map[messageKey]uint64
	handling      map[string]*histogram
}

func newCollector() *collector {
	return &collector{
		requests:      make(map[requestKey]uint64),
		requestErrors: make(map[routeKey]uint64),
		latency:       make(map[routeKey]*histogram),
		messages:      make(map[messageKey]uint64),
		handling:      make(map[string]*histogram),
	}
}

var defaultCollector = newCollector()

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	defaultCollector.observeRequest(handler, method, status, duration)
}

// ObserveMessage records one handled chat message. result is a short label
// such as "ok", "failed" or "error".
func ObserveMessage(intent, result string, duration time.Duration) {
	defaultCollector.observeMessage(intent, result, duration)
}

func (c *collector) observeRequest(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{handler: handler, method: method, code: strconv.Itoa(status)}]++
	key := routeKey{handler: handler, method: method}
	if status >= 500 {
		c.requestErrors[key]++
	}
	hist := c.latency[key]
	if hist == nil {
		hist = newHistogram()
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *collector) observeMessage(intent, result string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages[messageKey{intent: intent, result: result}]++
	hist := c.handling[intent]
	if hist == nil {
		hist = newHistogram()
		c.handling[intent] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// observe adds value to every bucket whose bound it fits under; values past
// the last bound only show up in the +Inf bucket via count.
func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return handlerFor(defaultCollector)
}

func handlerFor(c *collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, c.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(2048)

	b.WriteString("# HELP stacksave_messages_total Total number of chat messages handled.\n")
	b.WriteString("# TYPE stacksave_messages_total counter\n")
	msgKeys := make([]messageKey, 0, len(c.messages))
	for key := range c.messages {
		msgKeys = append(msgKeys, key)
	}
	sort.Slice(msgKeys, func(i, j int) bool {
		if msgKeys[i].intent == msgKeys[j].intent {
			return msgKeys[i].result < msgKeys[j].result
		}
		return msgKeys[i].intent < msgKeys[j].intent
	})
	for _, key := range msgKeys {
		fmt.Fprintf(&b, "stacksave_messages_total{intent=\"%s\",result=\"%s\"} %d\n",
			escape(key.intent), escape(key.result), c.messages[key])
	}

	b.WriteString("# HELP stacksave_message_duration_seconds Time spent handling a chat message.\n")
	b.WriteString("# TYPE stacksave_message_duration_seconds histogram\n")
	intents := make([]string, 0, len(c.handling))
	for name := range c.handling {
		intents = append(intents, name)
	}
	sort.Strings(intents)
	for _, name := range intents {
		writeHistogram(&b, "stacksave_message_duration_seconds", fmt.Sprintf("intent=\"%s\"", escape(name)), c.handling[name])
	}

	b.WriteString("# HELP stacksave_http_requests_total Total number of HTTP requests processed.\n")
	b.WriteString("# TYPE stacksave_http_requests_total counter\n")
	reqKeys := make([]requestKey, 0, len(c.requests))
	for key := range c.requests {
		reqKeys = append(reqKeys, key)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].handler == reqKeys[j].handler {
			if reqKeys[i].method == reqKeys[j].method {
				return reqKeys[i].code < reqKeys[j].code
			}
			return reqKeys[i].method < reqKeys[j].method
		}
		return reqKeys[i].handler < reqKeys[j].handler
	})
	for _, key := range reqKeys {
		fmt.Fprintf(&b, "stacksave_http_requests_total{handler=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(key.handler), escape(key.method), escape(key.code), c.requests[key])
	}

	routes := make([]routeKey, 0, len(c.latency))
	for key := range c.latency {
		routes = append(routes, key)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].handler == routes[j].handler {
			return routes[i].method < routes[j].method
		}
		return routes[i].handler < routes[j].handler
	})

	b.WriteString("# HELP stacksave_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	b.WriteString("# TYPE stacksave_http_request_errors_total counter\n")
	for _, key := range routes {
		if n := c.requestErrors[key]; n > 0 {
			fmt.Fprintf(&b, "stacksave_http_request_errors_total{handler=\"%s\",method=\"%s\"} %d\n",
				escape(key.handler), escape(key.method), n)
		}
	}

	b.WriteString("# HELP stacksave_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE stacksave_http_request_duration_seconds histogram\n")
	for _, key := range routes {
		labels := fmt.Sprintf("handler=\"%s\",method=\"%s\"", escape(key.handler), escape(key.method))
		writeHistogram(&b, "stacksave_http_request_duration_seconds", labels, c.latency[key])
	}

	return b.String()
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	for idx, bound := range h.buckets {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%s\"} %d\n", name, labels, formatFloat(bound), h.counts[idx])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.count)
	fmt.Fprintf(b, "%s_sum{%s} %s\n", name, labels, formatFloat(h.sum))
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.count)
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
