// Package ofenet implements an online feature-extraction network for
// reinforcement learning. The network learns auxiliary representations
// of states and state-action pairs by training on self-supervised
// targets (next-state features, next-state feature differences, or
// rewards) and exposes the learned features to a downstream policy or
// value learner in place of raw observations.
//
// The network is a pair of feature-expanding branches: the state
// branch runs the flattened observation through a stack of growth
// blocks, and the action branch runs the state features concatenated
// with the action vector through a second stack. A lazily shaped
// linear head projects the final features onto the auxiliary task's
// target.
//
// OFENet is not safe for concurrent use; callers invoking one network
// from multiple goroutines must synchronize externally.
package ofenet

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"sfneuman.com/ofenet/initwfn"
	"sfneuman.com/ofenet/network"
	"sfneuman.com/ofenet/solver"
	"sfneuman.com/ofenet/utils/tensorutils"
)

// OFENet is an online feature-extraction network. Its parameters are
// owned exclusively by the network instance and mutated only by Train;
// Test and the feature-extraction methods never modify them.
type OFENet struct {
	schema Schema
	config Config

	stateBranch  *network.Branch
	actionBranch *network.Branch
	outLayer     *network.Linear

	solver G.Solver

	// Compiled programs, cached per entry point and recompiled when a
	// call presents a new batch size
	train    *program
	eval     *program
	features *program

	trainLoss float64
	metrics   Metrics

	dimStateFeatures       int
	dimStateActionFeatures int
}

// New creates and returns a new OFENet for observations conforming to
// the given schema. All configuration problems, including an
// indivisible layer budget and an unrecognized auxiliary task, are
// reported here and never deferred to training time.
func New(schema Schema, config Config) (*OFENet, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("new: %w: schema has no fields",
			ErrInvalidConfiguration)
	}
	if width, known := schema.Width(); known && width != config.DimState {
		return nil, fmt.Errorf("new: %w: schema flattens to width %v but "+
			"DimState is %v", ErrInvalidConfiguration, width, config.DimState)
	}

	stateUnits, actionUnits, err := CalculateLayerUnits(config.DimState,
		config.DimAction, config.TotalUnits, config.NumLayers)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	if config.Activation == nil {
		config.Activation = network.ReLU()
	}
	if config.InitWFn == nil {
		if config.InitWFn, err = initwfn.NewGlorotU(1.0,
			config.Seed); err != nil {
			return nil, fmt.Errorf("new: could not create weight "+
				"initializer: %v", err)
		}
	}
	if config.Solver == nil {
		if config.Solver, err = solver.NewDefaultAdam(0.001, 1); err != nil {
			return nil, fmt.Errorf("new: could not create solver: %v", err)
		}
	}

	newBranch := func(units []int) (*network.Branch, error) {
		blocks := make([]network.GrowthBlock, len(units))
		for i, u := range units {
			block, err := network.NewDenseBlock(u, config.Activation,
				config.Dropout, config.InitWFn.InitWFn())
			if err != nil {
				return nil, err
			}
			blocks[i] = block
		}
		return network.NewBranch(blocks)
	}

	stateBranch, err := newBranch(stateUnits)
	if err != nil {
		return nil, fmt.Errorf("new: could not build state branch: %v", err)
	}
	actionBranch, err := newBranch(actionUnits)
	if err != nil {
		return nil, fmt.Errorf("new: could not build action branch: %v", err)
	}

	outLayer, err := network.NewLinear(
		config.AuxTask.targetCols(config.DimOutput),
		config.InitWFn.InitWFn(),
	)
	if err != nil {
		return nil, fmt.Errorf("new: could not build output projection: %v",
			err)
	}

	return &OFENet{
		schema:       append(Schema{}, schema...),
		config:       config,
		stateBranch:  stateBranch,
		actionBranch: actionBranch,
		outLayer:     outLayer,
		solver:       config.Solver,

		dimStateFeatures: config.DimState + config.TotalUnits,
		dimStateActionFeatures: config.DimState + config.TotalUnits +
			config.DimAction + config.TotalUnits,
	}, nil
}

// DimStateFeatures returns the width of the feature vectors returned
// by FeaturesFromStates.
func (o *OFENet) DimStateFeatures() int {
	return o.dimStateFeatures
}

// DimStateActionFeatures returns the width of the feature vectors
// returned by FeaturesFromStatesActions.
func (o *OFENet) DimStateActionFeatures() int {
	return o.dimStateActionFeatures
}

// AuxTask returns the auxiliary task the network trains on.
func (o *OFENet) AuxTask() AuxTask {
	return o.config.AuxTask
}

// TrainLoss returns the auxiliary-task loss of the most recent Train
// call.
func (o *OFENet) TrainLoss() float64 {
	return o.trainLoss
}

// LastMetrics returns the metric snapshot of the most recent Test
// call.
func (o *OFENet) LastMetrics() Metrics {
	return o.metrics
}

// Train performs one gradient-based optimization step on the selected
// auxiliary task's loss for a batch of transitions, mutating the
// network parameters and retaining the training loss. The dones batch
// is accepted for call-site symmetry with replay buffers but takes no
// part in any auxiliary task.
func (o *OFENet) Train(states map[string]*tensor.Dense,
	actions *tensor.Dense, nextStates map[string]*tensor.Dense,
	rewards, dones *tensor.Dense) error {
	flat, err := o.flatten(states)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	batch := flat.Shape()[0]
	if err := o.checkActions(actions, batch); err != nil {
		return fmt.Errorf("train: %w", err)
	}

	target, err := o.target(flat, nextStates, rewards, batch)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	p, err := o.trainProgram(batch)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	if err := G.Let(p.states, flat); err != nil {
		return fmt.Errorf("train: could not set states: %v", err)
	}
	if p.actions != nil {
		if err := G.Let(p.actions, actions); err != nil {
			return fmt.Errorf("train: could not set actions: %v", err)
		}
	}
	if err := G.Let(p.targets, target); err != nil {
		return fmt.Errorf("train: could not set targets: %v", err)
	}

	if err := p.vm.RunAll(); err != nil {
		return fmt.Errorf("train: could not run forward pass: %v", err)
	}
	defer p.vm.Reset()

	if err := o.solver.Step(p.model); err != nil {
		return fmt.Errorf("train: could not apply solver step: %v", err)
	}

	o.trainLoss = p.loss.Data().(float64)
	return nil
}

// Test evaluates the selected auxiliary task on a batch of transitions
// without mutating any parameter: the forward pass runs in inference
// mode on a program that contains no gradient graph at all. The
// returned snapshot is also retained and available from LastMetrics.
func (o *OFENet) Test(states map[string]*tensor.Dense,
	actions *tensor.Dense, nextStates map[string]*tensor.Dense,
	rewards, dones *tensor.Dense) (Metrics, error) {
	flat, err := o.flatten(states)
	if err != nil {
		return Metrics{}, fmt.Errorf("test: %w", err)
	}
	batch := flat.Shape()[0]
	if err := o.checkActions(actions, batch); err != nil {
		return Metrics{}, fmt.Errorf("test: %w", err)
	}

	target, err := o.target(flat, nextStates, rewards, batch)
	if err != nil {
		return Metrics{}, fmt.Errorf("test: %w", err)
	}

	p, err := o.evalProgram(batch)
	if err != nil {
		return Metrics{}, fmt.Errorf("test: %w", err)
	}

	if err := G.Let(p.states, flat); err != nil {
		return Metrics{}, fmt.Errorf("test: could not set states: %v", err)
	}
	if err := G.Let(p.actions, actions); err != nil {
		return Metrics{}, fmt.Errorf("test: could not set actions: %v", err)
	}

	if err := p.vm.RunAll(); err != nil {
		return Metrics{}, fmt.Errorf("test: could not run forward pass: %v",
			err)
	}
	defer p.vm.Reset()

	predicted := append([]float64{}, valueFloats(p.prediction)...)
	o.metrics = computeMetrics(predicted, valueFloats(target))
	return o.metrics, nil
}

// FeaturesFromStates returns the learned state-only features of a
// batch of observations. The forward pass runs in inference mode, so
// repeated calls with identical inputs and unchanged parameters return
// identical features, and the network is never left in a non-training
// mode: modes are per-program, not network state.
func (o *OFENet) FeaturesFromStates(
	states map[string]*tensor.Dense) (*tensor.Dense, error) {
	flat, err := o.flatten(states)
	if err != nil {
		return nil, fmt.Errorf("featuresfromstates: %w", err)
	}

	p, err := o.featureProgram(flat.Shape()[0])
	if err != nil {
		return nil, fmt.Errorf("featuresfromstates: %w", err)
	}

	if err := G.Let(p.states, flat); err != nil {
		return nil, fmt.Errorf("featuresfromstates: could not set "+
			"states: %v", err)
	}
	if err := p.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("featuresfromstates: could not run forward "+
			"pass: %v", err)
	}
	defer p.vm.Reset()

	features, err := cloneDense(p.stateFeatures)
	if err != nil {
		return nil, fmt.Errorf("featuresfromstates: %w", err)
	}
	return features, nil
}

// FeaturesFromStatesActions returns the learned state-action features
// of a batch of observations and actions, with the same inference-mode
// guarantees as FeaturesFromStates.
func (o *OFENet) FeaturesFromStatesActions(states map[string]*tensor.Dense,
	actions *tensor.Dense) (*tensor.Dense, error) {
	flat, err := o.flatten(states)
	if err != nil {
		return nil, fmt.Errorf("featuresfromstatesactions: %w", err)
	}
	batch := flat.Shape()[0]
	if err := o.checkActions(actions, batch); err != nil {
		return nil, fmt.Errorf("featuresfromstatesactions: %w", err)
	}

	p, err := o.evalProgram(batch)
	if err != nil {
		return nil, fmt.Errorf("featuresfromstatesactions: %w", err)
	}

	if err := G.Let(p.states, flat); err != nil {
		return nil, fmt.Errorf("featuresfromstatesactions: could not set "+
			"states: %v", err)
	}
	if err := G.Let(p.actions, actions); err != nil {
		return nil, fmt.Errorf("featuresfromstatesactions: could not set "+
			"actions: %v", err)
	}
	if err := p.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("featuresfromstatesactions: could not run "+
			"forward pass: %v", err)
	}
	defer p.vm.Reset()

	features, err := cloneDense(p.stateActionFeatures)
	if err != nil {
		return nil, fmt.Errorf("featuresfromstatesactions: %w", err)
	}
	return features, nil
}

// flatten flattens a structured observation batch and verifies its
// width against the declared state dimensionality.
func (o *OFENet) flatten(
	states map[string]*tensor.Dense) (*tensor.Dense, error) {
	flat, err := o.schema.Flatten(states)
	if err != nil {
		return nil, err
	}
	if width := flat.Shape()[1]; width != o.config.DimState {
		return nil, fmt.Errorf("flatten: %w: observation flattens to "+
			"width %v but the network was built for %v", ErrSchemaMismatch,
			width, o.config.DimState)
	}
	return flat, nil
}

// checkActions verifies that an action batch has shape
// (batch, DimAction).
func (o *OFENet) checkActions(actions *tensor.Dense, batch int) error {
	if actions == nil {
		return fmt.Errorf("%w: actions are required", ErrShapeMismatch)
	}
	shape := actions.Shape()
	if len(shape) != 2 || shape[0] != batch ||
		shape[1] != o.config.DimAction {
		return fmt.Errorf("%w: actions have shape %v \n\twant(%v, %v)",
			ErrShapeMismatch, shape, batch, o.config.DimAction)
	}
	return nil
}

// target computes the auxiliary-task regression target for a batch.
func (o *OFENet) target(flatStates *tensor.Dense,
	nextStates map[string]*tensor.Dense, rewards *tensor.Dense,
	batch int) (*tensor.Dense, error) {
	switch o.config.AuxTask {
	case FSP:
		flatNext, err := o.flatten(nextStates)
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		return truncate(flatNext, o.config.DimOutput)

	case FSDP:
		flatNext, err := o.flatten(nextStates)
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		next, err := truncate(flatNext, o.config.DimOutput)
		if err != nil {
			return nil, err
		}
		current, err := truncate(flatStates, o.config.DimOutput)
		if err != nil {
			return nil, err
		}
		diff, err := next.Sub(current)
		if err != nil {
			return nil, fmt.Errorf("target: could not compute feature "+
				"difference: %v", err)
		}
		return diff, nil

	case RWP:
		if rewards == nil {
			return nil, fmt.Errorf("target: %w: rewards are required",
				ErrShapeMismatch)
		}
		if rewards.Shape().TotalSize() != batch {
			return nil, fmt.Errorf("target: %w: rewards have shape %v but "+
				"the batch holds %v transitions", ErrShapeMismatch,
				rewards.Shape(), batch)
		}
		r := rewards.Clone().(*tensor.Dense)
		if err := r.Reshape(batch, 1); err != nil {
			return nil, fmt.Errorf("target: could not reshape rewards: %v",
				err)
		}
		return r, nil
	}

	// Unreachable: the task selector is validated at construction
	return nil, fmt.Errorf("target: %w: unknown auxiliary task %q",
		ErrInvalidConfiguration, o.config.AuxTask)
}

// truncate returns the first cols feature columns of a matrix.
func truncate(t *tensor.Dense, cols int) (*tensor.Dense, error) {
	width := t.Shape()[1]
	if width < cols {
		return nil, fmt.Errorf("truncate: %w: cannot take %v columns from "+
			"a matrix of width %v", ErrShapeMismatch, cols, width)
	}
	if width == cols {
		return t, nil
	}

	view, err := t.Slice(nil, tensorutils.Columns(cols))
	if err != nil {
		return nil, fmt.Errorf("truncate: could not slice matrix: %v", err)
	}
	return view.Materialize().(*tensor.Dense), nil
}

// valueFloats returns the float64 data of a Value, normalizing scalar
// values to a slice of length one.
func valueFloats(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case float64:
		return []float64{data}
	}
	panic(fmt.Sprintf("valuefloats: value does not hold float64 data: %T",
		v.Data()))
}

// cloneDense copies a Value into a freshly backed dense tensor so that
// the caller's view cannot be overwritten by a later run of the same
// program.
func cloneDense(v G.Value) (*tensor.Dense, error) {
	dense, ok := v.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("clonedense: value is not a dense "+
			"tensor: %T", v)
	}
	return dense.Clone().(*tensor.Dense), nil
}
