package ofenet

import "fmt"

// AuxTask describes the self-supervised prediction objective used to
// train the representation features. The task is fixed at
// construction; an unrecognized selector is a construction-time
// failure, never a runtime one.
type AuxTask string

// Available auxiliary tasks
const (
	// FSP predicts the next observation's flattened features,
	// truncated to the network's output dimensionality.
	FSP AuxTask = "fsp"

	// FSDP predicts the change in truncated flattened features
	// between the current and the next observation.
	FSDP AuxTask = "fsdp"

	// RWP predicts the scalar reward of the transition.
	RWP AuxTask = "rwp"
)

// ParseAuxTask converts a task selector string into an AuxTask,
// failing with ErrInvalidConfiguration on unrecognized selectors.
func ParseAuxTask(s string) (AuxTask, error) {
	switch AuxTask(s) {
	case FSP, FSDP, RWP:
		return AuxTask(s), nil
	}
	return "", fmt.Errorf("parseauxtask: %w: unknown auxiliary task %q",
		ErrInvalidConfiguration, s)
}

// String implements the Stringer interface
func (a AuxTask) String() string {
	return string(a)
}

// targetCols returns the number of target columns the task predicts.
func (a AuxTask) targetCols(dimOutput int) int {
	if a == RWP {
		return 1
	}
	return dimOutput
}
