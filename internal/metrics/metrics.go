// Package metrics keeps in-process counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

type collector interface {
	family() *dto.MetricFamily
}

// Registry holds named collectors.
type Registry struct {
	mu         sync.Mutex
	collectors map[string]collector
}

func NewRegistry() *Registry {
	return &Registry{collectors: make(map[string]collector)}
}

// Counter registers a counter vector. Registering a name twice panics.
func (r *Registry) Counter(name, help string, labels ...string) *CounterVec {
	v := &CounterVec{name: name, help: help, labels: labels, vals: make(map[string]*counterEntry)}
	r.register(name, v)
	return v
}

// Gauge registers an unlabelled gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	g := &Gauge{name: name, help: help}
	r.register(name, g)
	return g
}

func (r *Registry) register(name string, c collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.collectors[name]; dup {
		panic(fmt.Sprintf("metrics: duplicate collector %q", name))
	}
	r.collectors[name] = c
}

// Gather snapshots every collector, sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	names := make([]string, 0, len(r.collectors))
	for n := range r.collectors {
		names = append(names, n)
	}
	cs := make([]collector, 0, len(names))
	sort.Strings(names)
	for _, n := range names {
		cs = append(cs, r.collectors[n])
	}
	r.mu.Unlock()

	out := make([]*dto.MetricFamily, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.family())
	}
	return out
}

// WriteText writes the text exposition of all collectors to w.
func (r *Registry) WriteText(w io.Writer) error {
	for _, mf := range r.Gather() {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the registry in text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		_ = r.WriteText(w)
	})
}

type counterEntry struct {
	values []string
	bits   atomic.Uint64 // float64 bits
}

// CounterVec is a monotonically increasing counter partitioned by labels.
type CounterVec struct {
	name   string
	help   string
	labels []string

	mu   sync.RWMutex
	vals map[string]*counterEntry
}

// Inc adds one to the series identified by values.
func (v *CounterVec) Inc(values ...string) { v.Add(1, values...) }

// Add increases the series by d; negative d is ignored.
func (v *CounterVec) Add(d float64, values ...string) {
	if d < 0 {
		return
	}
	e := v.entry(values)
	for {
		old := e.bits.Load()
		if e.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+d)) {
			return
		}
	}
}

// Value returns the current value of a series, 0 when unseen.
func (v *CounterVec) Value(values ...string) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if e, ok := v.vals[key(v.pad(values))]; ok {
		return math.Float64frombits(e.bits.Load())
	}
	return 0
}

func (v *CounterVec) pad(values []string) []string {
	out := make([]string, len(v.labels))
	copy(out, values)
	return out
}

func (v *CounterVec) entry(values []string) *counterEntry {
	values = v.pad(values)
	k := key(values)
	v.mu.RLock()
	e, ok := v.vals[k]
	v.mu.RUnlock()
	if ok {
		return e
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if e, ok = v.vals[k]; !ok {
		e = &counterEntry{values: values}
		v.vals[k] = e
	}
	return e
}

func (v *CounterVec) family() *dto.MetricFamily {
	v.mu.RLock()
	keys := make([]string, 0, len(v.vals))
	for k := range v.vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	metrics := make([]*dto.Metric, 0, len(keys))
	for _, k := range keys {
		e := v.vals[k]
		val := math.Float64frombits(e.bits.Load())
		metrics = append(metrics, &dto.Metric{
			Label:   labelPairs(v.labels, e.values),
			Counter: &dto.Counter{Value: &val},
		})
	}
	v.mu.RUnlock()
	return &dto.MetricFamily{
		Name:   strPtr(v.name),
		Help:   strPtr(v.help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: metrics,
	}
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name string
	help string
	v    atomic.Int64
}

func (g *Gauge) Inc()         { g.v.Add(1) }
func (g *Gauge) Dec()         { g.v.Add(-1) }
func (g *Gauge) Set(n int64)  { g.v.Store(n) }
func (g *Gauge) Value() int64 { return g.v.Load() }

func (g *Gauge) family() *dto.MetricFamily {
	val := float64(g.v.Load())
	return &dto.MetricFamily{
		Name:   strPtr(g.name),
		Help:   strPtr(g.help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: &val}}},
	}
}

func labelPairs(names, values []string) []*dto.LabelPair {
	out := make([]*dto.LabelPair, len(names))
	for i := range names {
		out[i] = &dto.LabelPair{Name: strPtr(names[i]), Value: strPtr(values[i])}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

func key(values []string) string { return strings.Join(values, "\xff") }

func strPtr(s string) *string { return &s }
