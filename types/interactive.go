package types

import (
	"encoding/json"
	"fmt"
)

// ElementKind tags the shape of an interactive overlay element.
type ElementKind string

const (
	ElementHighlight ElementKind = "highlight"
	ElementPoint     ElementKind = "point"
)

// DefaultPointRadius is used when a point element omits its radius.
const DefaultPointRadius = 5.0

// InteractiveElement is an overlay shape anchored to the camera view.
// All coordinates and sizes are percentages of the frame, 0 to 100.
// A highlight carries a width and height, a point carries a radius;
// construction rejects any mix of the two. Comment is the caption the
// model attached to the shape.
type InteractiveElement struct {
	Kind    ElementKind `json:"type"`
	X       float64     `json:"x"`
	Y       float64     `json:"y"`
	Width   float64     `json:"width,omitempty"`
	Height  float64     `json:"height,omitempty"`
	Radius  float64     `json:"radius,omitempty"`
	Comment string      `json:"comment"`
}

// NewHighlight builds a rectangular highlight element.
func NewHighlight(x, y, width, height float64, comment string) (InteractiveElement, error) {
	if err := checkPercent("x", x); err != nil {
		return InteractiveElement{}, err
	}
	if err := checkPercent("y", y); err != nil {
		return InteractiveElement{}, err
	}
	if err := checkPercent("width", width); err != nil {
		return InteractiveElement{}, err
	}
	if err := checkPercent("height", height); err != nil {
		return InteractiveElement{}, err
	}
	return InteractiveElement{
		Kind:    ElementHighlight,
		X:       x,
		Y:       y,
		Width:   width,
		Height:  height,
		Comment: comment,
	}, nil
}

// NewPoint builds a circular point element. A radius of zero takes the
// default.
func NewPoint(x, y, radius float64, comment string) (InteractiveElement, error) {
	if err := checkPercent("x", x); err != nil {
		return InteractiveElement{}, err
	}
	if err := checkPercent("y", y); err != nil {
		return InteractiveElement{}, err
	}
	if radius == 0 {
		radius = DefaultPointRadius
	}
	if err := checkPercent("radius", radius); err != nil {
		return InteractiveElement{}, err
	}
	return InteractiveElement{
		Kind:    ElementPoint,
		X:       x,
		Y:       y,
		Radius:  radius,
		Comment: comment,
	}, nil
}

// Validate checks the tag and that only the fields valid for the tag
// are set.
func (e InteractiveElement) Validate() error {
	switch e.Kind {
	case ElementHighlight:
		if e.Radius != 0 {
			return fmt.Errorf("highlight element must not carry a radius")
		}
	case ElementPoint:
		if e.Width != 0 || e.Height != 0 {
			return fmt.Errorf("point element must not carry width or height")
		}
	default:
		return fmt.Errorf("unknown element kind %q", e.Kind)
	}
	return nil
}

// UnmarshalJSON decodes and validates the tagged shape.
func (e *InteractiveElement) UnmarshalJSON(data []byte) error {
	type raw InteractiveElement
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	decoded := InteractiveElement(r)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*e = decoded
	return nil
}

func checkPercent(name string, v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%s out of range: %v is not within [0, 100]", name, v)
	}
	return nil
}
