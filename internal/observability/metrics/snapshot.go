package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	terminalFamily     = "clinic_checkout_flows_terminal_total"
	finalizationFamily = "clinic_checkout_finalizations_total"
	verifyFamily       = "clinic_checkout_verification_duration_seconds"
)

// Snapshot summarises checkout outcomes for the stats endpoint.
type Snapshot struct {
	Succeeded            int64            `json:"succeeded"`
	Failed               int64            `json:"failed"`
	Cancelled            int64            `json:"cancelled"`
	FailedByReason       map[string]int64 `json:"failed_by_reason,omitempty"`
	PartialFinalizations int64            `json:"partial_finalizations"`
	Verifications        int64            `json:"verifications"`
	MeanVerifySeconds    float64          `json:"mean_verify_seconds"`
}

// TakeSnapshot reads the checkout families from gatherer.
func TakeSnapshot(gatherer prometheus.Gatherer) Snapshot {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	out := Snapshot{FailedByReason: map[string]int64{}}
	mfs, err := gatherer.Gather()
	if err != nil {
		return out
	}

	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case terminalFamily:
			for _, metric := range mf.Metric {
				n := counterValue(metric)
				reason := labelValue(metric, "reason")
				switch labelValue(metric, "state") {
				case "succeeded":
					out.Succeeded += n
				case "failed":
					out.Failed += n
					if reason != "" {
						out.FailedByReason[reason] += n
					}
				case "cancelled":
					out.Cancelled += n
				}
			}
		case finalizationFamily:
			for _, metric := range mf.Metric {
				if labelValue(metric, "result") == "partial" {
					out.PartialFinalizations += counterValue(metric)
				}
			}
		case verifyFamily:
			var count uint64
			var sum float64
			for _, metric := range mf.Metric {
				h := metric.GetHistogram()
				if h == nil {
					continue
				}
				count += h.GetSampleCount()
				sum += h.GetSampleSum()
			}
			out.Verifications = int64(count)
			if count > 0 {
				out.MeanVerifySeconds = sum / float64(count)
			}
		}
	}
	if len(out.FailedByReason) == 0 {
		out.FailedByReason = nil
	}
	return out
}

func counterValue(metric *dto.Metric) int64 {
	if metric == nil || metric.GetCounter() == nil {
		return 0
	}
	return int64(metric.GetCounter().GetValue())
}

func labelValue(metric *dto.Metric, name string) string {
	if metric == nil {
		return ""
	}
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
