package surface

import (
	"fmt"
	"strings"
)

// Category is the semantic classification reported for a surface. Values
// outside the named set can arrive from newer providers and are kept as-is.
type Category uint8

const (
	CategoryOther Category = iota
	CategoryCeiling
	CategoryFloor
	CategoryTable
	CategoryWall
)

func (c Category) String() string {
	switch c {
	case CategoryOther:
		return "other"
	case CategoryCeiling:
		return "ceiling"
	case CategoryFloor:
		return "floor"
	case CategoryTable:
		return "table"
	case CategoryWall:
		return "wall"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Known reports whether c is one of the named categories.
func (c Category) Known() bool {
	return c <= CategoryWall
}

// ParseCategory maps a category name to its value. Unknown names are Other.
func ParseCategory(raw string) Category {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ceiling":
		return CategoryCeiling
	case "floor":
		return CategoryFloor
	case "table":
		return CategoryTable
	case "wall":
		return CategoryWall
	default:
		return CategoryOther
	}
}

// Alignment is the plane orientation a provider was asked to detect.
type Alignment uint8

const (
	AlignmentUnknown Alignment = iota
	AlignmentHorizontal
	AlignmentVertical
)

func (a Alignment) String() string {
	switch a {
	case AlignmentHorizontal:
		return "horizontal"
	case AlignmentVertical:
		return "vertical"
	default:
		return "unknown"
	}
}

func ParseAlignment(raw string) (Alignment, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "horizontal":
		return AlignmentHorizontal, nil
	case "vertical":
		return AlignmentVertical, nil
	default:
		return AlignmentUnknown, fmt.Errorf("surface: unknown alignment %q", raw)
	}
}
