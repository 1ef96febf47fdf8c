package network

import (
	"errors"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// runFwd runs a single forward pass of a growth block on the given
// input matrix and returns the output value.
func runFwd(t *testing.T, block GrowthBlock, in *tensor.Dense,
	mode Mode) G.Value {
	g := G.NewGraph()
	shape := in.Shape()
	x := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(shape[0], shape[1]),
		G.WithName("x"),
		G.WithInit(G.Zeroes()),
	)

	out, learnables, err := block.Fwd(x, mode)
	if err != nil {
		t.Fatalf("could not compute forward pass: %v", err)
	}
	if len(learnables) != 2 {
		t.Fatalf("wrong number of learnables \n\twant(2) \n\thave(%v)",
			len(learnables))
	}

	var outVal G.Value
	G.Read(out, &outVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	if err := G.Let(x, in); err != nil {
		t.Fatalf("could not set input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run forward pass: %v", err)
	}

	return outVal
}

func TestDenseBlockFwd(t *testing.T) {
	block, err := NewDenseBlock(4, ReLU(), 0.0, G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("could not create block: %v", err)
	}
	if block.Units() != 4 {
		t.Fatalf("wrong units \n\twant(4) \n\thave(%v)", block.Units())
	}
	if block.Materialized() {
		t.Fatal("block should not be materialized before its first " +
			"forward pass")
	}

	backing := []float64{1, 2, 3, 4, 5, 6}
	in := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(backing))

	out := runFwd(t, block, in, ModeInfer)

	if !block.Materialized() {
		t.Fatal("block should be materialized after its first forward pass")
	}

	wantShape := tensor.Shape{2, 7}
	if !out.Shape().Eq(wantShape) {
		t.Fatalf("wrong output shape \n\twant(%v) \n\thave(%v)", wantShape,
			out.Shape())
	}

	// The input features are concatenated unchanged ahead of the grown
	// features
	data := out.Data().([]float64)
	for row := 0; row < 2; row++ {
		for col := 0; col < 3; col++ {
			want := backing[row*3+col]
			have := data[row*7+col]
			if have != want {
				t.Errorf("input features were not passed through at "+
					"(%v, %v) \n\twant(%v) \n\thave(%v)", row, col, want,
					have)
			}
		}
	}
}

func TestDenseBlockWidthDrift(t *testing.T) {
	block, err := NewDenseBlock(4, ReLU(), 0.0, G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("could not create block: %v", err)
	}

	in := tensor.New(
		tensor.WithShape(2, 3),
		tensor.WithBacking(make([]float64, 6)),
	)
	runFwd(t, block, in, ModeInfer)

	g := G.NewGraph()
	x := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(2, 5),
		G.WithName("x"),
		G.WithInit(G.Zeroes()),
	)
	if _, _, err := block.Fwd(x, ModeInfer); !errors.Is(err,
		ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch \n\thave(%v)", err)
	}
}

func TestNewDenseBlockIllegalArguments(t *testing.T) {
	if _, err := NewDenseBlock(0, ReLU(), 0.0, nil); err == nil {
		t.Error("expected an error for zero units")
	}
	if _, err := NewDenseBlock(4, ReLU(), 1.0, nil); err == nil {
		t.Error("expected an error for a dropout rate of 1")
	}
	if _, err := NewDenseBlock(4, ReLU(), -0.1, nil); err == nil {
		t.Error("expected an error for a negative dropout rate")
	}
}

func TestBranchFwd(t *testing.T) {
	newBlock := func(units int) GrowthBlock {
		block, err := NewDenseBlock(units, TanH(), 0.0, G.GlorotU(1.0))
		if err != nil {
			t.Fatalf("could not create block: %v", err)
		}
		return block
	}

	branch, err := NewBranch([]GrowthBlock{newBlock(4), newBlock(2)})
	if err != nil {
		t.Fatalf("could not create branch: %v", err)
	}
	if branch.Units() != 6 {
		t.Fatalf("wrong branch units \n\twant(6) \n\thave(%v)",
			branch.Units())
	}
	if branch.NumBlocks() != 2 {
		t.Fatalf("wrong number of blocks \n\twant(2) \n\thave(%v)",
			branch.NumBlocks())
	}

	g := G.NewGraph()
	x := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(3, 5),
		G.WithName("x"),
		G.WithInit(G.Zeroes()),
	)

	out, learnables, err := branch.Fwd(x, ModeInfer)
	if err != nil {
		t.Fatalf("could not compute forward pass: %v", err)
	}
	if len(learnables) != 4 {
		t.Fatalf("wrong number of learnables \n\twant(4) \n\thave(%v)",
			len(learnables))
	}

	wantShape := tensor.Shape{3, 11}
	if !out.Shape().Eq(wantShape) {
		t.Fatalf("wrong output shape \n\twant(%v) \n\thave(%v)", wantShape,
			out.Shape())
	}
}

func TestEmptyBranchIsIdentity(t *testing.T) {
	branch, err := NewBranch(nil)
	if err != nil {
		t.Fatalf("could not create branch: %v", err)
	}
	if branch.Units() != 0 {
		t.Fatalf("wrong branch units \n\twant(0) \n\thave(%v)",
			branch.Units())
	}

	g := G.NewGraph()
	x := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(2, 3),
		G.WithName("x"),
		G.WithInit(G.Zeroes()),
	)

	out, learnables, err := branch.Fwd(x, ModeInfer)
	if err != nil {
		t.Fatalf("could not compute forward pass: %v", err)
	}
	if out != x {
		t.Error("empty branch should return its input unchanged")
	}
	if len(learnables) != 0 {
		t.Errorf("empty branch should register no learnables "+
			"\n\thave(%v)", len(learnables))
	}
}

func TestNewBranchNilBlock(t *testing.T) {
	block, err := NewDenseBlock(4, ReLU(), 0.0, G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("could not create block: %v", err)
	}
	if _, err := NewBranch([]GrowthBlock{block, nil}); err == nil {
		t.Error("expected an error for a nil block")
	}
}
