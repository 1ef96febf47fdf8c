package network

import (
	"errors"
	"fmt"
	"sync/atomic"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrShapeMismatch indicates that a component was run on an input whose
// feature width disagrees with the width its parameters were
// materialized for.
var ErrShapeMismatch = errors.New("shape mismatch")

// Mode selects the forward-pass behaviour of a network component.
// Components that apply regularization (e.g. dropout) do so only in
// ModeTrain; in ModeInfer the forward pass is deterministic. The mode
// is an argument to each forward pass rather than component state, so
// an inference-only computation can never leave a component in the
// wrong mode for subsequent training.
type Mode int

const (
	ModeTrain Mode = iota
	ModeInfer
)

// GrowthBlock is a feature-expanding network layer: given an input of
// width W it produces an output of width W + Units(). Concrete blocks
// decide how the additional features are computed and combined with
// the input.
//
// A block's parameters are materialized during its first forward pass,
// when the input width is first known, and are fixed thereafter.
// Running a materialized block on an input of a different width fails
// with ErrShapeMismatch.
type GrowthBlock interface {
	// Units returns the fixed amount by which the block widens its
	// input.
	Units() int

	// Fwd adds the forward pass of the block to the graph of x and
	// returns the output node together with the learnable nodes the
	// block registered in that graph.
	Fwd(x *G.Node, mode Mode) (*G.Node, G.Nodes, error)
}

// DenseBlock implements GrowthBlock with dense growth: the input is
// passed through a single fully connected layer and the activated
// result is concatenated to the original input along the feature
// axis. An optional dropout rate regularizes the new features during
// training.
type DenseBlock struct {
	id      uint64
	units   int
	act     *Activation
	dropout float64
	init    G.InitWFn

	// Materialized on first forward pass
	in      int
	weights *tensor.Dense
	bias    *tensor.Dense
}

// NewDenseBlock returns a new DenseBlock growing its input by units
// features. The dropout rate must be in [0, 1) and is only applied in
// ModeTrain.
func NewDenseBlock(units int, act *Activation, dropout float64,
	init G.InitWFn) (*DenseBlock, error) {
	if units < 1 {
		return nil, fmt.Errorf("newdenseblock: units must be positive "+
			"\n\thave(%v)", units)
	}
	if dropout < 0 || dropout >= 1 {
		return nil, fmt.Errorf("newdenseblock: dropout must be in [0, 1) "+
			"\n\thave(%v)", dropout)
	}
	if act == nil {
		act = ReLU()
	}
	if init == nil {
		init = G.GlorotU(1.0)
	}

	return &DenseBlock{
		id:      nextID(),
		units:   units,
		act:     act,
		dropout: dropout,
		init:    init,
	}, nil
}

// nodeID disambiguates the node names of distinct components within
// one graph.
var nodeID uint64

func nextID() uint64 {
	return atomic.AddUint64(&nodeID, 1)
}

// Units returns the width increment of the block.
func (d *DenseBlock) Units() int {
	return d.units
}

// Materialized returns whether the block's parameters have been
// allocated yet.
func (d *DenseBlock) Materialized() bool {
	return d.weights != nil
}

// materialize allocates the block's parameters for an input of width
// in. Parameters are allocated exactly once; a later call with a
// different width is an error.
func (d *DenseBlock) materialize(in int) error {
	if d.weights != nil {
		if in != d.in {
			return fmt.Errorf("materialize: %w: block was materialized "+
				"with input width %v but run with width %v",
				ErrShapeMismatch, d.in, in)
		}
		return nil
	}

	wBacking := d.init(tensor.Float64, in, d.units)
	d.weights = tensor.New(
		tensor.WithShape(in, d.units),
		tensor.WithBacking(wBacking),
	)

	bBacking := G.Zeroes()(tensor.Float64, 1, d.units)
	d.bias = tensor.New(
		tensor.WithShape(1, d.units),
		tensor.WithBacking(bBacking),
	)

	d.in = in
	return nil
}

// Fwd adds the forward pass of the DenseBlock to the graph of x. The
// input must be a matrix of shape (batch, in).
func (d *DenseBlock) Fwd(x *G.Node, mode Mode) (*G.Node, G.Nodes, error) {
	if !x.IsMatrix() {
		return nil, nil, fmt.Errorf("fwd: input must be a matrix")
	}
	if err := d.materialize(x.Shape()[1]); err != nil {
		return nil, nil, fmt.Errorf("fwd: %w", err)
	}

	g := x.Graph()
	w := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName(fmt.Sprintf("DenseBlock%vWeights", d.id)),
		G.WithValue(d.weights),
	)
	b := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName(fmt.Sprintf("DenseBlock%vBias", d.id)),
		G.WithValue(d.bias),
	)

	h := G.Must(G.Mul(x, w))

	// Broadcast the bias weights to all samples along the batch
	// dimension
	h = G.Must(G.BroadcastAdd(h, b, nil, []byte{0}))

	h, err := d.act.fwd(h)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not compute activation: %v",
			err)
	}

	if mode == ModeTrain && d.dropout > 0 {
		if h, err = G.Dropout(h, d.dropout); err != nil {
			return nil, nil, fmt.Errorf("fwd: could not apply dropout: %v",
				err)
		}
	}

	out, err := G.Concat(1, x, h)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not concatenate features: %v",
			err)
	}

	return out, G.Nodes{w, b}, nil
}
