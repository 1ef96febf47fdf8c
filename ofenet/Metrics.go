package ofenet

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// epsilon pads every denominator of the ratio-based metrics. Targets
// near zero therefore yield large-but-finite statistics instead of
// NaN or Inf; the precision loss on such targets is a deliberate
// trade for robustness.
const epsilon = 1e-10

// Metrics is a snapshot of the evaluation error statistics of the
// auxiliary task. A snapshot is recomputed in full on every evaluation
// call; no history is retained.
type Metrics struct {
	MAE      float64 // Mean absolute error
	MAERatio float64 // MAE over mean target magnitude
	MAPE     float64 // Mean absolute percentage error
	MSE      float64 // Mean squared error
	MSERatio float64 // MSE over mean squared target magnitude
	MSPE     float64 // Mean squared percentage error
}

// Slice returns the metrics in their fixed reporting order:
// [MAE, MAERatio, MAPE, MSE, MSERatio, MSPE].
func (m Metrics) Slice() []float64 {
	return []float64{m.MAE, m.MAERatio, m.MAPE, m.MSE, m.MSERatio, m.MSPE}
}

// computeMetrics computes the six-statistic snapshot for a predicted
// and a target slice of equal length.
func computeMetrics(predicted, target []float64) Metrics {
	n := float64(len(target))

	var absErr, absPct, sqPct float64
	diff := make([]float64, len(target))
	copy(diff, target)
	floats.Sub(diff, predicted)
	for i, d := range diff {
		absErr += math.Abs(d)
		rel := d / (target[i] + epsilon)
		absPct += math.Abs(rel)
		sqPct += rel * rel
	}

	mae := absErr / n
	mse := floats.Dot(diff, diff) / n
	meanTarget := floats.Sum(target) / n
	meanSqTarget := floats.Dot(target, target) / n

	return Metrics{
		MAE:      mae,
		MAERatio: math.Abs(mae / (meanTarget + epsilon)),
		MAPE:     absPct / n,
		MSE:      mse,
		MSERatio: mse / (meanSqTarget + epsilon),
		MSPE:     sqPct / n,
	}
}
