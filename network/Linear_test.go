package network

import (
	"errors"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestLinearLazyMaterialization(t *testing.T) {
	linear, err := NewLinear(2, G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("could not create projection: %v", err)
	}
	if linear.Materialized() {
		t.Fatal("projection should not be materialized before its first " +
			"forward pass")
	}
	if linear.Inputs() != 0 {
		t.Fatalf("unbound projection should report input width 0 "+
			"\n\thave(%v)", linear.Inputs())
	}
	if linear.Outputs() != 2 {
		t.Fatalf("wrong outputs \n\twant(2) \n\thave(%v)", linear.Outputs())
	}

	g := G.NewGraph()
	x := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(4, 3),
		G.WithName("x"),
		G.WithInit(G.Zeroes()),
	)

	out, learnables, err := linear.Fwd(x)
	if err != nil {
		t.Fatalf("could not compute forward pass: %v", err)
	}
	if len(learnables) != 2 {
		t.Fatalf("wrong number of learnables \n\twant(2) \n\thave(%v)",
			len(learnables))
	}

	wantShape := tensor.Shape{4, 2}
	if !out.Shape().Eq(wantShape) {
		t.Fatalf("wrong output shape \n\twant(%v) \n\thave(%v)", wantShape,
			out.Shape())
	}

	if !linear.Materialized() {
		t.Fatal("projection should be materialized after its first " +
			"forward pass")
	}
	if linear.Inputs() != 3 {
		t.Fatalf("wrong materialized input width \n\twant(3) \n\thave(%v)",
			linear.Inputs())
	}
}

func TestLinearWidthDrift(t *testing.T) {
	linear, err := NewLinear(2, G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("could not create projection: %v", err)
	}

	g := G.NewGraph()
	x := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(4, 3),
		G.WithName("x"),
		G.WithInit(G.Zeroes()),
	)
	if _, _, err := linear.Fwd(x); err != nil {
		t.Fatalf("could not compute forward pass: %v", err)
	}

	g = G.NewGraph()
	x = G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(4, 5),
		G.WithName("x"),
		G.WithInit(G.Zeroes()),
	)
	if _, _, err := linear.Fwd(x); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch \n\thave(%v)", err)
	}
}

func TestNewLinearIllegalOutputs(t *testing.T) {
	if _, err := NewLinear(0, nil); err == nil {
		t.Error("expected an error for zero outputs")
	}
}
