package progs

import "math"

// FloatCell returns the raw cell bits of f.
func FloatCell(f float32) uint32 {
	return math.Float32bits(f)
}

// CellFloat reinterprets a raw cell as a float.
func CellFloat(c uint32) float32 {
	return math.Float32frombits(c)
}

func cellFloat(c uint32) float32 {
	return CellFloat(c)
}
