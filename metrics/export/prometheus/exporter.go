package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/MrEthical07/goOnboard/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source supplies metric snapshots. *goOnboard.Engine implements it.
type Source interface {
	MetricsSnapshot() goOnboard.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders a [Source] in the Prometheus text format.
type Exporter struct {
	source Source
}

// NewExporter returns an exporter reading from source.
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics, streaming straight into the response.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = p.WriteTo(w)
	})
}

// Render returns the exposition text, or "" when nothing is recorded.
func (p *Exporter) Render() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes one snapshot to w. Metrics disabled on the engine produce
// no output at all.
func (p *Exporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}
	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	ew := &expositionWriter{w: bufio.NewWriterSize(w, 4096)}
	for _, def := range internaldefs.CounterDefs {
		ew.counter(def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		ew.histogram(def.Name, def.Help, buckets, snapshot.LatencySum[def.ID])
	}
	ew.counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, dropped)

	if ew.err == nil {
		ew.err = ew.w.Flush()
	}
	return ew.n, ew.err
}

// expositionWriter remembers the first write error so the render loop
// stays free of error checks.
type expositionWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (e *expositionWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	n, err := fmt.Fprintf(e.w, format, args...)
	e.n += int64(n)
	e.err = err
}

func (e *expositionWriter) header(name, help, kind string) {
	help = strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
	e.printf("# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func (e *expositionWriter) counter(name, help string, value uint64) {
	e.header(name, help, "counter")
	e.printf("%s %d\n", name, value)
}

func (e *expositionWriter) histogram(name, help string, cumulative [8]uint64, sum time.Duration) {
	e.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		e.printf("%s_bucket{le=%q} %d\n", name, le, cumulative[i])
	}
	e.printf("%s_sum %g\n", name, sum.Seconds())
	e.printf("%s_count %d\n", name, cumulative[len(cumulative)-1])
}
