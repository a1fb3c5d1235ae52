// Package tensor holds the batch tensors exchanged between the coordinator and
// its workers. Rows index environment instances.
package tensor

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Device tells where a tensor lives. Accelerator memory is visible to every
// worker on the host and is always passed by reference.
type Device int

const (
	Host Device = iota
	Accelerator
)

func (d Device) String() string {
	if d == Accelerator {
		return "accelerator"
	}
	return "host"
}

var ErrShape = errors.New("tensor shape mismatch")

type Tensor struct {
	data   *mat.Dense
	device Device

	// shared is set for tensors resident in an Arena and for views of them.
	shared bool
	// arena is set only on the tensor owning an arena buffer, never on views.
	arena *Arena
}

// New creates a host tensor. data is used as backing storage when not nil and
// must hold rows*cols values in row-major order.
func New(rows, cols int, data []float64) *Tensor {
	return &Tensor{data: mat.NewDense(rows, cols, data)}
}

// FromRows builds a host tensor from equally sized rows.
func FromRows(rows [][]float64) *Tensor {
	if len(rows) == 0 {
		panic("tensor: no rows")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			panic(fmt.Sprintf("tensor: row %d has %d columns, want %d", i, len(row), cols))
		}
		data = append(data, row...)
	}
	return New(len(rows), cols, data)
}

// FromDense wraps an existing matrix without copying.
func FromDense(m *mat.Dense) *Tensor {
	return &Tensor{data: m}
}

// Full returns a host tensor with every element set to v.
func Full(rows, cols int, v float64) *Tensor {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	return New(rows, cols, data)
}

// OnDevice returns t tagged as resident on d. The data is not copied.
func (t *Tensor) OnDevice(d Device) *Tensor {
	return &Tensor{data: t.data, device: d, shared: t.shared}
}

func (t *Tensor) Device() Device { return t.device }

// IsShared reports whether the tensor can cross the worker boundary by
// reference: it lives on the accelerator or in an Arena.
func (t *Tensor) IsShared() bool {
	return t.device == Accelerator || t.shared
}

func (t *Tensor) Dims() (rows, cols int) { return t.data.Dims() }

func (t *Tensor) Rows() int {
	r, _ := t.data.Dims()
	return r
}

func (t *Tensor) Cols() int {
	_, c := t.data.Dims()
	return c
}

func (t *Tensor) At(i, j int) float64 { return t.data.At(i, j) }

func (t *Tensor) Set(i, j int, v float64) { t.data.Set(i, j, v) }

// Row returns a copy of row i.
func (t *Tensor) Row(i int) []float64 {
	return mat.Row(nil, i, t.data)
}

// Dense exposes the backing matrix.
func (t *Tensor) Dense() *mat.Dense { return t.data }

// SliceRows returns a view over rows [start, end). Writes through the view
// are visible in t.
func (t *Tensor) SliceRows(start, end int) *Tensor {
	rows, cols := t.data.Dims()
	if start < 0 || end > rows || start >= end {
		panic(fmt.Sprintf("tensor: row slice [%d:%d] out of range for %d rows", start, end, rows))
	}
	view := t.data.Slice(start, end, 0, cols).(*mat.Dense)
	return &Tensor{data: view, device: t.device, shared: t.shared}
}

// CopyFrom overwrites t in place with src. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	r, c := t.Dims()
	sr, sc := src.Dims()
	if r != sr || c != sc {
		return fmt.Errorf("%w: copy %dx%d into %dx%d", ErrShape, sr, sc, r, c)
	}
	t.data.Copy(src.data)
	return nil
}

// Clone returns an unshared host copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{data: mat.DenseCopyOf(t.data)}
}

// Any reports whether any element is non-zero.
func (t *Tensor) Any() bool {
	rows, cols := t.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if t.data.At(i, j) != 0 {
				return true
			}
		}
	}
	return false
}

func (t *Tensor) String() string {
	rows, cols := t.Dims()
	var b strings.Builder
	fmt.Fprintf(&b, "tensor(%dx%d, %s", rows, cols, t.device)
	if t.shared {
		b.WriteString(", shared")
	}
	b.WriteString(")")
	return b.String()
}

// Equal reports whether a and b have the same shape and elements.
func Equal(a, b *Tensor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return mat.Equal(a.data, b.data)
}

// VStack stacks tensors vertically in argument order into a new host tensor.
func VStack(parts ...*Tensor) (*Tensor, error) {
	if len(parts) == 0 {
		return nil, errors.New("tensor: nothing to stack")
	}
	cols := parts[0].Cols()
	total := 0
	for i, p := range parts {
		if p == nil {
			return nil, fmt.Errorf("tensor: part %d is nil", i)
		}
		if p.Cols() != cols {
			return nil, fmt.Errorf("%w: part %d has %d columns, want %d", ErrShape, i, p.Cols(), cols)
		}
		total += p.Rows()
	}
	out := mat.NewDense(total, cols, nil)
	offset := 0
	for _, p := range parts {
		r := p.Rows()
		out.Slice(offset, offset+r, 0, cols).(*mat.Dense).Copy(p.data)
		offset += r
	}
	return &Tensor{data: out}, nil
}
