// Package tile addresses and sharpens the raster tiles of an MBTiles tileset.
package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level accepted in tile paths.
const MaxZoom = 24

// Coords represents a tile coordinate in the Web Mercator tile system (z/x/y).
type Coords struct {
	Z uint32 // Zoom level
	X uint32 // Column
	Y uint32 // Row, XYZ (top-left origin)
}

// String returns the tile coordinate as "z/x/y".
func (c Coords) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Tile returns the maptile.Tile for this coordinate.
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// FromTile converts a maptile.Tile to Coords.
func FromTile(t maptile.Tile) Coords {
	return Coords{Z: uint32(t.Z), X: t.X, Y: t.Y}
}

// Valid reports whether x and y lie inside the grid of zoom z.
func (c Coords) Valid() bool {
	if c.Z > MaxZoom {
		return false
	}
	n := uint32(1) << c.Z
	return c.X < n && c.Y < n
}

// ParseCoords parses "z/x/y" into Coords.
func ParseCoords(s string) (Coords, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Coords{}, fmt.Errorf("invalid tile coordinate format: %s", s)
	}

	var vals [3]uint32
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Coords{}, fmt.Errorf("invalid tile coordinate format: %s", s)
		}
		vals[i] = uint32(v)
	}

	c := Coords{Z: vals[0], X: vals[1], Y: vals[2]}
	if !c.Valid() {
		return Coords{}, fmt.Errorf("tile %s is outside the zoom %d grid", s, c.Z)
	}
	return c, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat" (WGS84) into an orb.Bound.
// An empty string yields the zero bound, which matches every tile.
func ParseBBox(s string) (orb.Bound, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return orb.Bound{}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: want minLon,minLat,maxLon,maxLat", s)
	}

	var f [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox %q: %w", s, err)
		}
		f[i] = v
	}

	if f[0] > f[2] || f[1] > f[3] {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: min exceeds max", s)
	}
	if f[0] < -180 || f[2] > 180 || f[1] < -90 || f[3] > 90 {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: outside WGS84 range", s)
	}

	return orb.Bound{Min: orb.Point{f[0], f[1]}, Max: orb.Point{f[2], f[3]}}, nil
}

// InBound reports whether tile t overlaps b. A zero bound matches everything.
func InBound(t maptile.Tile, b orb.Bound) bool {
	if b.IsZero() {
		return true
	}
	return t.Bound().Intersects(b)
}
