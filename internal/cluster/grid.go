package cluster

import (
	"fmt"
	"math"

	"github.com/pickupsports/mapcluster/internal/geo"
)

// CellSize converts a clustering distance to a grid cell edge in degrees.
// Cells span roughly two cluster diameters so any pair within the distance
// falls in the same or an adjacent cell.
func CellSize(thresholdMeters float64) float64 {
	return thresholdMeters * 2 / geo.MetersPerDegree
}

type cellKey struct {
	row, col int
}

func (k cellKey) String() string {
	return fmt.Sprintf("%d,%d", k.row, k.col)
}

// Grid buckets point indexes by cell. Bucket contents keep insertion order.
type Grid struct {
	cellSize float64
	coords   []geo.Coordinates
	cells    map[cellKey][]int
}

// NewGrid assigns every coordinate to its cell. cellSize must be positive.
func NewGrid(coords []geo.Coordinates, cellSize float64) *Grid {
	g := &Grid{
		cellSize: cellSize,
		coords:   coords,
		cells:    make(map[cellKey][]int),
	}
	for i, c := range coords {
		k := g.keyFor(c)
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *Grid) keyFor(c geo.Coordinates) cellKey {
	return cellKey{
		row: int(math.Floor(c.Latitude / g.cellSize)),
		col: int(math.Floor(c.Longitude / g.cellSize)),
	}
}

// Key returns the "row,col" bucket key for c.
func (g *Grid) Key(c geo.Coordinates) string {
	return g.keyFor(c).String()
}

// Buckets returns the number of non-empty cells.
func (g *Grid) Buckets() int {
	return len(g.cells)
}

// Bucket returns the indexes stored in the cell containing c.
func (g *Grid) Bucket(c geo.Coordinates) []int {
	return g.cells[g.keyFor(c)]
}

// Neighbors calls fn for every index in the 3x3 window of cells around the
// cell of point i, row by row, each cell in insertion order. Point i itself
// is included.
func (g *Grid) Neighbors(i int, fn func(j int)) {
	k := g.keyFor(g.coords[i])
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			for _, j := range g.cells[cellKey{row: k.row + dr, col: k.col + dc}] {
				fn(j)
			}
		}
	}
}
