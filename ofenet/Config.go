package ofenet

import (
	"fmt"

	"sfneuman.com/ofenet/initwfn"
	"sfneuman.com/ofenet/network"
	"sfneuman.com/ofenet/solver"
)

// Config describes the construction parameters of an OFENet. The
// struct round-trips through JSON so that an experiment harness can
// store network constructions in configuration files.
type Config struct {
	// DimState is the flattened observation width. DimAction is the
	// action vector width. DimOutput is the auxiliary task's target
	// dimensionality (ignored for reward prediction, which always
	// predicts a single column).
	DimState  int
	DimAction int
	DimOutput int

	// TotalUnits is the total feature-growth budget of each branch,
	// split evenly across NumLayers growth blocks. TotalUnits must be
	// divisible by NumLayers.
	TotalUnits int
	NumLayers  int

	// AuxTask selects the self-supervised training objective.
	AuxTask AuxTask

	// SkipActionBranch bypasses the action branch in the
	// auxiliary-task forward pass, training state features only. The
	// action branch is still built and still serves
	// FeaturesFromStatesActions.
	SkipActionBranch bool

	// Dropout is the dropout rate applied inside each growth block
	// during training. Zero disables dropout.
	Dropout float64

	// Activation is the nonlinearity of each growth block. Defaults
	// to ReLU.
	Activation *network.Activation

	// Solver adapts the network weights. Defaults to Adam with step
	// size 1e-3.
	Solver *solver.Solver

	// InitWFn initializes the network weights. Defaults to Glorot
	// Uniform with gain 1, seeded with Seed.
	InitWFn *initwfn.InitWFn

	// Seed seeds the default weight initializer. A Seed of 0 draws a
	// seed from the wall clock. Ignored when InitWFn is set, since a
	// configured initializer carries its own seed.
	Seed uint64
}

// Validate returns an error wrapping ErrInvalidConfiguration if the
// configuration cannot construct a network.
func (c *Config) Validate() error {
	if c.DimState < 1 {
		return fmt.Errorf("validate: %w: DimState must be positive "+
			"\n\thave(%v)", ErrInvalidConfiguration, c.DimState)
	}
	if c.DimAction < 1 {
		return fmt.Errorf("validate: %w: DimAction must be positive "+
			"\n\thave(%v)", ErrInvalidConfiguration, c.DimAction)
	}
	if c.DimOutput < 1 {
		return fmt.Errorf("validate: %w: DimOutput must be positive "+
			"\n\thave(%v)", ErrInvalidConfiguration, c.DimOutput)
	}
	if c.TotalUnits < 1 {
		return fmt.Errorf("validate: %w: TotalUnits must be positive "+
			"\n\thave(%v)", ErrInvalidConfiguration, c.TotalUnits)
	}
	if _, _, err := CalculateLayerUnits(c.DimState, c.DimAction,
		c.TotalUnits, c.NumLayers); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if _, err := ParseAuxTask(string(c.AuxTask)); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if c.AuxTask != RWP && c.DimOutput > c.DimState {
		return fmt.Errorf("validate: %w: DimOutput (%v) exceeds the "+
			"flattened state width (%v) for task %v",
			ErrInvalidConfiguration, c.DimOutput, c.DimState, c.AuxTask)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("validate: %w: Dropout must be in [0, 1) "+
			"\n\thave(%v)", ErrInvalidConfiguration, c.Dropout)
	}
	return nil
}
