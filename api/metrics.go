package api

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// RequestTrace tracks timing for a single request
type RequestTrace struct {
	RequestID     string         `json:"requestId"`
	Method        string         `json:"method"`
	Path          string         `json:"path"`
	Status        int            `json:"status"`
	StartTime     time.Time      `json:"startTime"`
	TotalDuration time.Duration  `json:"totalDuration"`
	StoreOps      []StoreOpTrace `json:"storeOps"`
	StoreTime     time.Duration  `json:"storeTime"`
}

// StoreOpTrace tracks a single record store call
type StoreOpTrace struct {
	Operation string        `json:"operation"`
	Table     string        `json:"table"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// RouteMetrics aggregates metrics for a specific route
type RouteMetrics struct {
	Method      string        `json:"method"`
	Path        string        `json:"path"`
	Count       int64         `json:"count"`
	ErrorCount  int64         `json:"errorCount"`
	TotalTime   time.Duration `json:"totalTime"`
	AvgTime     time.Duration `json:"avgTime"`
	MinTime     time.Duration `json:"minTime"`
	MaxTime     time.Duration `json:"maxTime"`
	StoreTime   time.Duration `json:"storeTime"`
	LastRequest time.Time     `json:"lastRequest"`
}

// MetricsCollector collects and aggregates request metrics. Recording never
// blocks a request, traces are dropped when the queue is full.
type MetricsCollector struct {
	mu            sync.RWMutex
	routeMetrics  map[string]*RouteMetrics
	windowStart   time.Time
	totalRequests int64
	totalErrors   int64
	traceChan     chan RequestTrace
}

// NewMetricsCollector starts a collector that processes traces in the background
func NewMetricsCollector(ctx context.Context) *MetricsCollector {
	mc := &MetricsCollector{
		routeMetrics: map[string]*RouteMetrics{},
		windowStart:  time.Now(),
		traceChan:    make(chan RequestTrace, 1000),
	}
	go mc.processTraces(ctx)
	return mc
}

// RecordTrace queues a trace without blocking
func (mc *MetricsCollector) RecordTrace(trace RequestTrace) {
	select {
	case mc.traceChan <- trace:
	default:
	}
}

func (mc *MetricsCollector) processTraces(ctx context.Context) {
	for {
		select {
		case trace := <-mc.traceChan:
			mc.processTrace(trace)
		case <-ctx.Done():
			return
		}
	}
}

func (mc *MetricsCollector) processTrace(trace RequestTrace) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	path := normalizeRoutePath(trace.Path)
	key := trace.Method + " " + path
	m, ok := mc.routeMetrics[key]
	if !ok {
		m = &RouteMetrics{Method: trace.Method, Path: path, MinTime: trace.TotalDuration}
		mc.routeMetrics[key] = m
	}
	m.Count++
	m.TotalTime += trace.TotalDuration
	m.AvgTime = m.TotalTime / time.Duration(m.Count)
	m.StoreTime += trace.StoreTime
	m.LastRequest = trace.StartTime
	if trace.TotalDuration < m.MinTime {
		m.MinTime = trace.TotalDuration
	}
	if trace.TotalDuration > m.MaxTime {
		m.MaxTime = trace.TotalDuration
	}
	if trace.Status >= 400 {
		m.ErrorCount++
		mc.totalErrors++
	}
	mc.totalRequests++
}

// GetRouteMetrics returns a copy of every route's metrics, slowest first
func (mc *MetricsCollector) GetRouteMetrics() []RouteMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	routes := make([]RouteMetrics, 0, len(mc.routeMetrics))
	for _, m := range mc.routeMetrics {
		routes = append(routes, *m)
	}
	sort.Slice(routes, func(a, b int) bool {
		return routes[a].AvgTime > routes[b].AvgTime
	})
	return routes
}

// GetSummary returns overall summary metrics
func (mc *MetricsCollector) GetSummary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var errorRate float64
	if mc.totalRequests > 0 {
		errorRate = float64(mc.totalErrors) / float64(mc.totalRequests)
	}
	return map[string]interface{}{
		"totalRequests": mc.totalRequests,
		"totalErrors":   mc.totalErrors,
		"errorRate":     errorRate,
		"windowStart":   mc.windowStart,
		"routeCount":    len(mc.routeMetrics),
	}
}

var (
	objectIDPattern = regexp.MustCompile(`/[0-9a-fA-F]{24}(/|$)`)
	uuidPattern     = regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(/|$)`)
)

// normalizeRoutePath replaces ids and tokens with {id}
func normalizeRoutePath(path string) string {
	path = objectIDPattern.ReplaceAllString(path, "/{id}$1")
	path = uuidPattern.ReplaceAllString(path, "/{id}$1")
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

type requestTraceContextKey struct{}

type requestTraceContext struct {
	trace *RequestTrace
	mu    sync.Mutex
}

// WithRequestTrace adds request trace to context
func WithRequestTrace(ctx context.Context, trace *RequestTrace) context.Context {
	return context.WithValue(ctx, requestTraceContextKey{}, &requestTraceContext{trace: trace})
}

// RecordStoreOpFromContext appends a record store call to the request trace
// held by ctx. Contexts without a trace are ignored.
func RecordStoreOpFromContext(ctx context.Context, operation, table string, duration time.Duration, err error) {
	rt, _ := ctx.Value(requestTraceContextKey{}).(*requestTraceContext)
	if rt == nil || rt.trace == nil {
		return
	}
	op := StoreOpTrace{Operation: operation, Table: table, Duration: duration}
	if err != nil {
		op.Error = err.Error()
	}
	rt.mu.Lock()
	rt.trace.StoreOps = append(rt.trace.StoreOps, op)
	rt.trace.StoreTime += duration
	rt.mu.Unlock()
}
