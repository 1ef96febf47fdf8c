package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Branch is an ordered pipeline of growth blocks specializing in one
// input type. Each block widens the features flowing through it, so
// the branch's output width is its input width plus Units().
type Branch struct {
	blocks []GrowthBlock
	units  int
}

// NewBranch returns a new Branch running the given blocks in order. An
// empty branch is legal and acts as the identity.
func NewBranch(blocks []GrowthBlock) (*Branch, error) {
	units := 0
	for i, block := range blocks {
		if block == nil {
			return nil, fmt.Errorf("newbranch: block %v is nil", i)
		}
		units += block.Units()
	}

	return &Branch{
		blocks: blocks,
		units:  units,
	}, nil
}

// Units returns the total width growth over all blocks in the branch.
func (b *Branch) Units() int {
	return b.units
}

// NumBlocks returns the number of growth blocks in the branch.
func (b *Branch) NumBlocks() int {
	return len(b.blocks)
}

// Fwd adds the forward pass of every block, in order, to the graph of
// x and returns the final output node together with all learnable
// nodes the blocks registered in that graph.
func (b *Branch) Fwd(x *G.Node, mode Mode) (*G.Node, G.Nodes, error) {
	learnables := make(G.Nodes, 0, 2*len(b.blocks))

	out := x
	for i, block := range b.blocks {
		var nodes G.Nodes
		var err error
		if out, nodes, err = block.Fwd(out, mode); err != nil {
			return nil, nil, fmt.Errorf("fwd: could not compute forward "+
				"pass of block %v: %w", i, err)
		}
		learnables = append(learnables, nodes...)
	}

	return out, learnables, nil
}
