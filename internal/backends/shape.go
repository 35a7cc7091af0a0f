package backends

import (
	"errors"
	"fmt"
)

type Shape []int64

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int64(s))
}

// NewShape Returns a Shape, with the given dimensions.
func NewShape(dimensions ...int64) Shape {
	return dimensions
}

// Size is the number of elements a tensor of this shape holds.
func (s Shape) Size() int {
	if len(s) == 0 {
		return 0
	}
	size := 1
	for _, d := range s {
		if d <= 0 {
			return 0
		}
		size *= int(d)
	}
	return size
}

// Ints returns the dimensions as ints.
func (s Shape) Ints() []int {
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = int(d)
	}
	return out
}

func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Resolve pins a dynamic batch dimension (-1 or 0) to 1.
func (s Shape) Resolve() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	if len(out) > 0 && out[0] <= 0 {
		out[0] = 1
	}
	return out
}

// Layout is the memory order of an image tensor.
type Layout int

const (
	LayoutNHWC Layout = iota
	LayoutNCHW
)

func (l Layout) String() string {
	if l == LayoutNCHW {
		return "NCHW"
	}
	return "NHWC"
}

// ImageLayout reports how an RGB image of ImageSize x ImageSize must be laid
// out to fill a tensor of this shape. Only [1,128,128,3] and [1,3,128,128]
// are accepted.
func (s Shape) ImageLayout() (Layout, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("input shape %s: expected 4 dimensions, got %d", s, len(s))
	}
	if s[0] != 1 {
		return 0, fmt.Errorf("input shape %s: batch dimension must be 1", s)
	}
	switch {
	case s[1] == ImageSize && s[2] == ImageSize && s[3] == Channels:
		return LayoutNHWC, nil
	case s[1] == Channels && s[2] == ImageSize && s[3] == ImageSize:
		return LayoutNCHW, nil
	}
	return 0, fmt.Errorf("input shape %s: expected [1 %d %d %d] or [1 %d %d %d]",
		s, ImageSize, ImageSize, Channels, Channels, ImageSize, ImageSize)
}

// Tensor is a dense float32 buffer with its shape.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// NewTensor wraps data, checking that it fills shape exactly.
func NewTensor(shape Shape, data []float32) (*Tensor, error) {
	t := &Tensor{Shape: shape, Data: data}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tensor) Validate() error {
	if t == nil {
		return errors.New("nil tensor")
	}
	size := t.Shape.Size()
	if size == 0 {
		return fmt.Errorf("tensor shape %s is empty or dynamic", t.Shape)
	}
	if len(t.Data) != size {
		return fmt.Errorf("tensor shape %s expects %d values, got %d", t.Shape, size, len(t.Data))
	}
	return nil
}
