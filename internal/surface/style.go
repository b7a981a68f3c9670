package surface

// StyleToken drives the visual appearance of a representation. The scene host
// decides what a token looks like.
type StyleToken string

const (
	StyleCeiling StyleToken = "ceiling"
	StyleFloor   StyleToken = "floor"
	StyleTable   StyleToken = "table"
	StyleWall    StyleToken = "wall"
	StyleDefault StyleToken = "default"
)

// Classify maps a category to its style token. Other and unrecognized values
// map to StyleDefault; it never fails.
func Classify(c Category) StyleToken {
	switch c {
	case CategoryCeiling:
		return StyleCeiling
	case CategoryFloor:
		return StyleFloor
	case CategoryTable:
		return StyleTable
	case CategoryWall:
		return StyleWall
	default:
		return StyleDefault
	}
}

func (t StyleToken) Valid() bool {
	switch t {
	case StyleCeiling, StyleFloor, StyleTable, StyleWall, StyleDefault:
		return true
	default:
		return false
	}
}
