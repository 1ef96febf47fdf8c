package ofenet

import "fmt"

// CalculateLayerUnits splits a total feature-growth budget evenly
// across the growth blocks of the state branch and the action branch.
// Both returned sequences have length numLayers and every entry equals
// totalUnits / numLayers, which must divide evenly.
//
// actionDim takes no part in the current split policy: both branches
// receive identical per-layer widths. The parameter is kept so that an
// asymmetric split policy would not change any call site.
func CalculateLayerUnits(stateDim, actionDim, totalUnits,
	numLayers int) ([]int, []int, error) {
	if numLayers < 1 {
		return nil, nil, fmt.Errorf("calculatelayerunits: %w: numLayers "+
			"must be positive \n\thave(%v)", ErrInvalidConfiguration,
			numLayers)
	}
	if totalUnits%numLayers != 0 {
		return nil, nil, fmt.Errorf("calculatelayerunits: %w: totalUnits "+
			"(%v) is not divisible by numLayers (%v)",
			ErrInvalidConfiguration, totalUnits, numLayers)
	}

	perLayer := totalUnits / numLayers
	stateUnits := make([]int, numLayers)
	actionUnits := make([]int, numLayers)
	for i := 0; i < numLayers; i++ {
		stateUnits[i] = perLayer
		actionUnits[i] = perLayer
	}

	return stateUnits, actionUnits, nil
}
