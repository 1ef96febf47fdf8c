package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Linear is a fully connected projection whose input width is unknown
// until the first batch flows through it. The weight matrix is
// materialized exactly once, during the first forward pass, and the
// resolved width is fixed thereafter: a later forward pass with a
// different input width fails with ErrShapeMismatch.
type Linear struct {
	id      uint64
	outputs int
	init    G.InitWFn

	in      int
	weights *tensor.Dense
	bias    *tensor.Dense
}

// NewLinear returns a new unbound Linear projecting onto outputs
// features.
func NewLinear(outputs int, init G.InitWFn) (*Linear, error) {
	if outputs < 1 {
		return nil, fmt.Errorf("newlinear: outputs must be positive "+
			"\n\thave(%v)", outputs)
	}
	if init == nil {
		init = G.GlorotU(1.0)
	}

	return &Linear{
		id:      nextID(),
		outputs: outputs,
		init:    init,
	}, nil
}

// Outputs returns the number of features the projection produces.
func (l *Linear) Outputs() int {
	return l.outputs
}

// Materialized returns whether the projection's weights have been
// allocated yet.
func (l *Linear) Materialized() bool {
	return l.weights != nil
}

// Inputs returns the input width the projection was materialized with,
// or 0 if it is still unbound.
func (l *Linear) Inputs() int {
	return l.in
}

// Fwd adds the forward pass of the projection to the graph of x,
// materializing the weights on first use.
func (l *Linear) Fwd(x *G.Node) (*G.Node, G.Nodes, error) {
	if !x.IsMatrix() {
		return nil, nil, fmt.Errorf("fwd: input must be a matrix")
	}
	in := x.Shape()[1]

	if l.weights == nil {
		wBacking := l.init(tensor.Float64, in, l.outputs)
		l.weights = tensor.New(
			tensor.WithShape(in, l.outputs),
			tensor.WithBacking(wBacking),
		)

		bBacking := G.Zeroes()(tensor.Float64, 1, l.outputs)
		l.bias = tensor.New(
			tensor.WithShape(1, l.outputs),
			tensor.WithBacking(bBacking),
		)

		l.in = in
	} else if in != l.in {
		return nil, nil, fmt.Errorf("fwd: %w: projection was materialized "+
			"with input width %v but run with width %v", ErrShapeMismatch,
			l.in, in)
	}

	g := x.Graph()
	w := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName(fmt.Sprintf("Linear%vWeights", l.id)),
		G.WithValue(l.weights),
	)
	b := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName(fmt.Sprintf("Linear%vBias", l.id)),
		G.WithValue(l.bias),
	)

	out := G.Must(G.Mul(x, w))

	// Broadcast the bias weights to all samples along the batch
	// dimension
	out = G.Must(G.BroadcastAdd(out, b, nil, []byte{0}))

	return out, G.Nodes{w, b}, nil
}
