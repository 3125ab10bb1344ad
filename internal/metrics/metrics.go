// Package metrics counts what a run reclaimed, for export in the Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "transmission_delete_unwanted"

// Torrent outcomes, used as the result label.
const (
	ResultNothingToDo = "nothing_to_do"
	ResultReclaimed   = "reclaimed"
	ResultDryRun      = "dry_run"
	ResultFailed      = "failed"
)

// A nil *Metrics discards everything.
type Metrics struct {
	Registry *prometheus.Registry

	filesRemoved   prometheus.Counter
	filesTrimmed   prometheus.Counter
	bytesReclaimed prometheus.Counter
	torrents       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		filesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_removed_total",
			Help:      "Unwanted files removed outright, counting a file and its .part once.",
		}),
		filesTrimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_trimmed_total",
			Help:      "Unwanted files rewritten as partial files keeping only shared boundary pieces.",
		}),
		bytesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_reclaimed_total",
			Help:      "Bytes of file data removed or dropped from trimmed files.",
		}),
		torrents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "torrents_processed_total",
			Help:      "Torrents processed by result.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(m.filesRemoved, m.filesTrimmed, m.bytesReclaimed, m.torrents)
	return m
}

func (m *Metrics) FileRemoved(bytes int64) {
	if m == nil {
		return
	}
	m.filesRemoved.Inc()
	m.bytesReclaimed.Add(float64(bytes))
}

func (m *Metrics) FileTrimmed(droppedBytes int64) {
	if m == nil {
		return
	}
	m.filesTrimmed.Inc()
	m.bytesReclaimed.Add(float64(droppedBytes))
}

func (m *Metrics) TorrentDone(result string) {
	if m == nil {
		return
	}
	m.torrents.WithLabelValues(result).Inc()
}

// Writes the metrics atomically to path, in the format node_exporter's textfile collector reads.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
