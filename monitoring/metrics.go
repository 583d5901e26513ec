package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// 业务指标名称
const (
	MetricDecisionsTotal  = "loan_decisions_total"
	MetricDecisionLatency = "loan_decision_latency_ms"
	MetricModelAccuracy   = "loan_model_accuracy"
	MetricHTTPRequests    = "http_requests_total"
	MetricRequestLatency  = "http_request_latency_ms"
	MetricGoroutines      = "system_goroutines"
	MetricMemoryHeapAlloc = "memory_heap_alloc"
)

const (
	maxHistoryPerMetric    = 1000
	trimHistoryPerOverflow = 100
)

// Metric 指标
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// Summary 指标摘要
type Summary struct {
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	Latest  float64   `json:"latest"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Average float64   `json:"average"`
	P95     float64   `json:"p95"`
	Updated time.Time `json:"updated"`
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	metrics     map[string][]*Metric
	counters    map[string]float64
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]*Metric),
		counters:  make(map[string]float64),
		startTime: time.Now(),
	}
}

// Start 周期性收集运行时指标，直到ctx取消
func (mc *MetricsCollector) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mc.collectRuntimeMetrics()
			}
		}
	}()
}

// RecordMetric 记录指标
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	metric.Timestamp = time.Now()
	key := seriesKey(metric.Name, metric.Labels)
	if metric.Type == MetricTypeCounter {
		mc.counters[key] += metric.Value
		metric.Value = mc.counters[key]
	}

	mc.metrics[metric.Name] = append(mc.metrics[metric.Name], metric)

	// 限制历史大小
	if len(mc.metrics[metric.Name]) > maxHistoryPerMetric {
		mc.metrics[metric.Name] = mc.metrics[metric.Name][trimHistoryPerOverflow:]
	}
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeCounter, Value: value, Labels: labels})
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeGauge, Value: value, Labels: labels})
}

// ObserveHistogram 记录一次观测值
func (mc *MetricsCollector) ObserveHistogram(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeHistogram, Value: value, Labels: labels})
}

// GetMetric 获取指标历史副本
func (mc *MetricsCollector) GetMetric(name string) ([]*Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	metrics, ok := mc.metrics[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}

	result := make([]*Metric, len(metrics))
	for i, m := range metrics {
		metricCopy := *m
		result[i] = &metricCopy
	}
	return result, nil
}

// CounterValue 返回计数器当前值
func (mc *MetricsCollector) CounterValue(name string, labels map[string]string) float64 {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()
	return mc.counters[seriesKey(name, labels)]
}

// GetMetricSummary 获取指标摘要
func (mc *MetricsCollector) GetMetricSummary(name string) (Summary, error) {
	metrics, err := mc.GetMetric(name)
	if err != nil {
		return Summary{}, err
	}
	if len(metrics) == 0 {
		return Summary{Name: name}, nil
	}

	values := make(stats.Float64Data, len(metrics))
	for i, m := range metrics {
		values[i] = m.Value
	}

	summary := Summary{
		Name:    name,
		Count:   len(values),
		Latest:  values[len(values)-1],
		Updated: metrics[len(metrics)-1].Timestamp,
	}
	if summary.Min, err = stats.Min(values); err != nil {
		return Summary{}, err
	}
	if summary.Max, err = stats.Max(values); err != nil {
		return Summary{}, err
	}
	if summary.Average, err = stats.Mean(values); err != nil {
		return Summary{}, err
	}
	if summary.P95, err = stats.Percentile(values, 95); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// ExportPrometheus 导出Prometheus文本格式，每个序列输出最新值
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	names := make([]string, 0, len(mc.metrics))
	for name := range mc.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		metricList := mc.metrics[name]
		if len(metricList) == 0 {
			continue
		}

		latest := make(map[string]*Metric)
		for _, m := range metricList {
			latest[seriesKey(m.Name, m.Labels)] = m
		}
		keys := make([]string, 0, len(latest))
		for k := range latest {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		first := metricList[len(metricList)-1]
		help := first.Help
		if help == "" {
			help = fmt.Sprintf("Metric %s", name)
		}
		metricType := first.Type
		if metricType == MetricTypeHistogram {
			// 只导出最新观测值
			metricType = MetricTypeGauge
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, metricType)
		for _, k := range keys {
			m := latest[k]
			fmt.Fprintf(&b, "%s%s %g\n", name, formatLabels(m.Labels), m.Value)
		}
	}
	return b.String()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func (mc *MetricsCollector) collectRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.RecordMetric(&Metric{
		Name:  MetricMemoryHeapAlloc,
		Type:  MetricTypeGauge,
		Value: float64(m.HeapAlloc),
		Help:  "Memory heap allocated in bytes",
	})
	mc.RecordMetric(&Metric{
		Name:  MetricGoroutines,
		Type:  MetricTypeGauge,
		Value: float64(runtime.NumGoroutine()),
		Help:  "Number of goroutines",
	})
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
