package initwfn

import (
	"encoding/json"
	"testing"

	"gorgonia.org/tensor"
)

func TestGlorotUReproducible(t *testing.T) {
	first, err := NewGlorotU(1.0, 42)
	if err != nil {
		t.Fatalf("could not create initializer: %v", err)
	}
	second, err := NewGlorotU(1.0, 42)
	if err != nil {
		t.Fatalf("could not create initializer: %v", err)
	}

	a := first.InitWFn()(tensor.Float64, 3, 4).([]float64)
	b := second.InitWFn()(tensor.Float64, 3, 4).([]float64)

	if len(a) != 12 || len(b) != 12 {
		t.Fatalf("wrong number of weights \n\twant(12) \n\thave(%v, %v)",
			len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("initializers with equal seeds disagree at weight %v "+
				"\n\thave(%v, %v)", i, a[i], b[i])
		}
	}
}

func TestGlorotUBounds(t *testing.T) {
	init, err := NewGlorotU(1.0, 13)
	if err != nil {
		t.Fatalf("could not create initializer: %v", err)
	}

	// For gain 1 and fans (10, 10), weights lie in
	// (-sqrt(6/20), sqrt(6/20))
	limit := 0.5477225575051662
	weights := init.InitWFn()(tensor.Float64, 10, 10).([]float64)
	for i, w := range weights {
		if w <= -limit || w >= limit {
			t.Errorf("weight %v out of bounds \n\twant(±%v) \n\thave(%v)",
				i, limit, w)
		}
	}
}

func TestZeroes(t *testing.T) {
	init, err := NewZeroes()
	if err != nil {
		t.Fatalf("could not create initializer: %v", err)
	}

	weights := init.InitWFn()(tensor.Float64, 2, 3).([]float64)
	for i, w := range weights {
		if w != 0 {
			t.Errorf("weight %v should be zero \n\thave(%v)", i, w)
		}
	}
}

func TestInitWFnJSON(t *testing.T) {
	init, err := NewGlorotU(1.5, 42)
	if err != nil {
		t.Fatalf("could not create initializer: %v", err)
	}

	encoded, err := json.Marshal(init)
	if err != nil {
		t.Fatalf("could not marshal initializer: %v", err)
	}

	decoded := &InitWFn{}
	if err := json.Unmarshal(encoded, decoded); err != nil {
		t.Fatalf("could not unmarshal initializer: %v", err)
	}

	if decoded.Type != GlorotU {
		t.Fatalf("wrong type after serialization \n\twant(%v) \n\thave(%v)",
			GlorotU, decoded.Type)
	}
	config, ok := decoded.Config.(GlorotUConfig)
	if !ok {
		t.Fatalf("wrong configuration type after serialization "+
			"\n\thave(%T)", decoded.Config)
	}
	if config.Gain != 1.5 || config.Seed != 42 {
		t.Fatalf("configuration changed by serialization \n\twant(%v) "+
			"\n\thave(%v)", init.Config, config)
	}

	// The decoded initializer draws the same weights as the original
	a := init.InitWFn()(tensor.Float64, 3, 4).([]float64)
	b := decoded.InitWFn()(tensor.Float64, 3, 4).([]float64)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("decoded initializer disagrees at weight %v "+
				"\n\thave(%v, %v)", i, a[i], b[i])
		}
	}
}

func TestInitWFnUnmarshalUnknownType(t *testing.T) {
	decoded := &InitWFn{}
	err := json.Unmarshal([]byte(`{"Type":"Normal","Config":{}}`), decoded)
	if err == nil {
		t.Error("expected an error for an unknown initializer type")
	}

	err = json.Unmarshal([]byte(`{"Config":{}}`), decoded)
	if err == nil {
		t.Error("expected an error for a missing Type field")
	}
}
