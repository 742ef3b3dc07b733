package stats

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "xattrfs"

// Result labels
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	Gather = prometheus.NewRegistry()

	XattrOpCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "xattr",
			Name:      "ops",
			Help:      "Counter of attribute operations by result.",
		}, []string{"op", "result"})

	XattrRollbackCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "xattr",
			Name:      "rollbacks",
			Help:      "Counter of undo steps run after a failed set.",
		}, []string{"step"})

	XattrCorruptCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "xattr",
			Name:      "corrupt_items",
			Help:      "Counter of inconsistent attribute item groups found.",
		})

	TotalDeltaCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "totals",
			Name:      "deltas",
			Help:      "Counter of deltas applied to total buckets.",
		})

	TransCommitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "trans",
			Name:      "commits",
			Help:      "Counter of transaction commits by result.",
		}, []string{"result"})

	TransBusyCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "trans",
			Name:      "busy",
			Help:      "Counter of non-blocking holds refused.",
		})
)

func init() {
	Gather.MustRegister(XattrOpCounter)
	Gather.MustRegister(XattrRollbackCounter)
	Gather.MustRegister(XattrCorruptCounter)
	Gather.MustRegister(TotalDeltaCounter)
	Gather.MustRegister(TransCommitCounter)
	Gather.MustRegister(TransBusyCounter)
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// WriteCounters prints every counter in the registry, one per line, sorted
// by name and labels.
func WriteCounters(w io.Writer) error {
	families, err := Gather.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
