package ofenet

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"sfneuman.com/ofenet/network"
)

// programKind selects which entry point a compiled program serves.
type programKind int

const (
	// trainKind compiles the auxiliary-task forward pass in training
	// mode together with its gradient.
	trainKind programKind = iota

	// evalKind compiles the full forward pass in inference mode with
	// no gradient graph.
	evalKind

	// featureKind compiles the state branch alone in inference mode.
	featureKind
)

// program is a forward (and, for training, backward) pass of the
// network compiled at a fixed batch size. A program does not own any
// parameters: its graph nodes are bound to the persistent parameter
// tensors of the growth blocks and the output projection, so every
// program computes with the current weights no matter which program
// last updated them.
type program struct {
	g     *G.ExprGraph
	vm    G.VM
	batch int

	// Input nodes
	states  *G.Node
	actions *G.Node
	targets *G.Node

	// Values read out of the graph after a run
	stateFeatures       G.Value
	stateActionFeatures G.Value
	prediction          G.Value
	loss                G.Value

	// Learnables with their gradients, in construction order. Only
	// set for trainKind programs. The order is identical across
	// recompilations so the solver's per-parameter state stays
	// attached to the same parameters.
	model []G.ValueGrad
}

// compile builds and compiles a program of the given kind for the
// given batch size. The first compilation materializes any parameters
// that are still unbound: the growth blocks of each branch and the
// lazily shaped output projection.
func (o *OFENet) compile(batch int, kind programKind) (*program, error) {
	g := G.NewGraph()
	p := &program{g: g, batch: batch}

	mode := network.ModeInfer
	if kind == trainKind {
		mode = network.ModeTrain
	}

	p.states = G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, o.config.DimState),
		G.WithName("states"),
		G.WithInit(G.Zeroes()),
	)

	features, learnables, err := o.stateBranch.Fwd(p.states, mode)
	if err != nil {
		return nil, fmt.Errorf("compile: could not compute state branch: %w",
			err)
	}
	G.Read(features, &p.stateFeatures)

	if kind == featureKind {
		p.vm = G.NewTapeMachine(g)
		return p, nil
	}

	// The auxiliary-task head reads state-only features when the
	// action branch is skipped. Evaluation programs still construct
	// the action branch in that case, since it serves
	// FeaturesFromStatesActions; training programs must not, because
	// its parameters would be unreachable from the loss.
	headIn := features

	if kind == evalKind || !o.config.SkipActionBranch {
		p.actions = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(batch, o.config.DimAction),
			G.WithName("actions"),
			G.WithInit(G.Zeroes()),
		)

		joint, err := G.Concat(1, features, p.actions)
		if err != nil {
			return nil, fmt.Errorf("compile: could not concatenate "+
				"actions: %v", err)
		}

		saFeatures, actionLearnables, err := o.actionBranch.Fwd(joint, mode)
		if err != nil {
			return nil, fmt.Errorf("compile: could not compute action "+
				"branch: %w", err)
		}
		G.Read(saFeatures, &p.stateActionFeatures)

		if !o.config.SkipActionBranch {
			headIn = saFeatures
			learnables = append(learnables, actionLearnables...)
		}
	}

	prediction, outLearnables, err := o.outLayer.Fwd(headIn)
	if err != nil {
		return nil, fmt.Errorf("compile: could not compute output "+
			"projection: %w", err)
	}
	G.Read(prediction, &p.prediction)

	if kind == evalKind {
		p.vm = G.NewTapeMachine(g)
		return p, nil
	}

	learnables = append(learnables, outLearnables...)

	p.targets = G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, o.config.AuxTask.targetCols(o.config.DimOutput)),
		G.WithName("targets"),
		G.WithInit(G.Zeroes()),
	)

	loss := G.Must(G.Sub(p.targets, prediction))
	loss = G.Must(G.Square(loss))
	if loss, err = G.Mean(loss); err != nil {
		return nil, fmt.Errorf("compile: could not compute loss: %v", err)
	}
	G.Read(loss, &p.loss)

	if _, err := G.Grad(loss, learnables...); err != nil {
		return nil, fmt.Errorf("compile: could not construct gradient: %v",
			err)
	}

	p.model = make([]G.ValueGrad, len(learnables))
	for i, learnable := range learnables {
		p.model[i] = learnable
	}

	p.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	return p, nil
}

// trainProgram returns the cached training program, recompiling it if
// the batch size changed since the last training call.
func (o *OFENet) trainProgram(batch int) (*program, error) {
	if o.train == nil || o.train.batch != batch {
		p, err := o.compile(batch, trainKind)
		if err != nil {
			return nil, err
		}
		o.train = p
	}
	return o.train, nil
}

// evalProgram returns the cached full-forward inference program,
// recompiling it if the batch size changed.
func (o *OFENet) evalProgram(batch int) (*program, error) {
	if o.eval == nil || o.eval.batch != batch {
		p, err := o.compile(batch, evalKind)
		if err != nil {
			return nil, err
		}
		o.eval = p
	}
	return o.eval, nil
}

// featureProgram returns the cached state-branch inference program,
// recompiling it if the batch size changed.
func (o *OFENet) featureProgram(batch int) (*program, error) {
	if o.features == nil || o.features.batch != batch {
		p, err := o.compile(batch, featureKind)
		if err != nil {
			return nil, err
		}
		o.features = p
	}
	return o.features, nil
}
