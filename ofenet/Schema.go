package ofenet

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Field is one named sub-field of a structured observation. Shape is
// the per-sample shape excluding the batch dimension; it may be left
// nil, in which case it is learned from the first batch that flows
// through Flatten and fixed thereafter.
type Field struct {
	Name  string
	Shape []int
}

// Schema is the ordered set of sub-fields making up a structured
// observation. Flattening concatenates the sub-fields in declared
// order, so the schema's order determines the layout of every feature
// vector the network produces.
type Schema []Field

// Width returns the flattened feature width of the schema. The second
// return value is false if any field's shape is still unknown.
func (s Schema) Width() (int, bool) {
	width := 0
	for _, f := range s {
		if f.Shape == nil {
			return 0, false
		}
		width += prod(f.Shape)
	}
	return width, true
}

// Flatten converts a structured observation into a single flat feature
// matrix of shape (batch, width) by flattening each sub-field's
// non-batch dimensions and concatenating the sub-fields along the
// feature axis in declared key order. Flatten is deterministic and
// order-stable across calls.
//
// A missing field, a batch-dimension disagreement between fields, or a
// per-sample shape that disagrees with the declared (or previously
// learned) field shape fails with ErrSchemaMismatch.
func (s Schema) Flatten(obs map[string]*tensor.Dense) (*tensor.Dense, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("flatten: %w: schema has no fields",
			ErrSchemaMismatch)
	}

	batch := -1
	parts := make([]tensor.Tensor, len(s))
	for i := range s {
		f := &s[i]
		t, ok := obs[f.Name]
		if !ok {
			return nil, fmt.Errorf("flatten: %w: observation is missing "+
				"field %q", ErrSchemaMismatch, f.Name)
		}

		shape := t.Shape()
		if len(shape) < 1 {
			return nil, fmt.Errorf("flatten: %w: field %q has no batch "+
				"dimension", ErrSchemaMismatch, f.Name)
		}
		if batch < 0 {
			batch = shape[0]
		} else if shape[0] != batch {
			return nil, fmt.Errorf("flatten: %w: field %q has batch "+
				"dimension %v but other fields have %v", ErrSchemaMismatch,
				f.Name, shape[0], batch)
		}

		width := prod(shape[1:])
		if f.Shape == nil {
			f.Shape = append([]int{}, shape[1:]...)
		} else if prod(f.Shape) != width {
			return nil, fmt.Errorf("flatten: %w: field %q has per-sample "+
				"shape %v but the schema declares %v", ErrSchemaMismatch,
				f.Name, shape[1:], f.Shape)
		}

		flat := t.Clone().(*tensor.Dense)
		if err := flat.Reshape(batch, width); err != nil {
			return nil, fmt.Errorf("flatten: could not flatten field %q: %v",
				f.Name, err)
		}
		parts[i] = flat
	}

	if len(parts) == 1 {
		return parts[0].(*tensor.Dense), nil
	}

	out, err := tensor.Concat(1, parts[0], parts[1:]...)
	if err != nil {
		return nil, fmt.Errorf("flatten: could not concatenate fields: %v",
			err)
	}
	return out.(*tensor.Dense), nil
}

func prod(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}
