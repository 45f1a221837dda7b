// Package tileindex answers "which official tile contains this point" and
// "does this box overlap a supplied tile index" using R-tree lookups.
package tileindex

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Scale is the nominal map scale denominator of a tile scheme
type Scale int

const (
	Scale500   Scale = 500
	Scale1000  Scale = 1000
	Scale5000  Scale = 5000
	Scale10000 Scale = 10000
)

// ParseScale parses a scale denominator such as "1000"
func ParseScale(s string) (Scale, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid tile scale %q: %w", s, err)
	}
	switch Scale(n) {
	case Scale500, Scale1000, Scale5000, Scale10000:
		return Scale(n), nil
	}
	return 0, fmt.Errorf("unsupported tile scale %d (must be 500, 1000, 5000 or 10000)", n)
}

// ErrOutOfScheme is returned when no official tile contains the point
var ErrOutOfScheme = errors.New("point is outside the tile scheme")

// Tile is one entry of the official tiling scheme
type Tile struct {
	SheetCode string
	ID        string
	Scale     Scale
	Bound     orb.Bound
}

// Name returns the conventional "<sheet>_<scale>_<tile>" label
func (t Tile) Name() string {
	return fmt.Sprintf("%s_%d_%s", t.SheetCode, t.Scale, t.ID)
}

// containsHalfOpen treats the tile as [min, max) so shared edges belong to one tile
func (t Tile) containsHalfOpen(pt orb.Point) bool {
	return pt[0] >= t.Bound.Min[0] && pt[0] < t.Bound.Max[0] &&
		pt[1] >= t.Bound.Min[1] && pt[1] < t.Bound.Max[1]
}

// boundRect converts an orb bound to an rtreego rectangle
func boundRect(b orb.Bound) rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{b.Min[0], b.Min[1]},
		rtreego.Point{b.Max[0], b.Max[1]},
	)
	return r
}

// schemeEntry implements rtreego.Spatial
type schemeEntry struct {
	tile Tile
}

func (e *schemeEntry) Bounds() rtreego.Rect {
	return boundRect(e.tile.Bound)
}

// pointTolerance is the half-width of the query box used for point lookups
const pointTolerance = 1e-6

// Scheme is an immutable spatial index over the official tiles of one scale
type Scheme struct {
	scale Scale
	tree  *rtreego.Rtree
	count int
}

// NewScheme indexes the given tiles
func NewScheme(scale Scale, tiles []Tile) *Scheme {
	objs := make([]rtreego.Spatial, len(tiles))
	for i := range tiles {
		t := tiles[i]
		if t.Scale == 0 {
			t.Scale = scale
		}
		objs[i] = &schemeEntry{tile: t}
	}
	return &Scheme{
		scale: scale,
		tree:  rtreego.NewTree(2, 25, 50, objs...),
		count: len(tiles),
	}
}

// Scale returns the scale the scheme was built for
func (s *Scheme) Scale() Scale { return s.scale }

// Len returns the number of tiles in the scheme
func (s *Scheme) Len() int { return s.count }

// GetTile returns the official tile containing pt. A point on an edge shared
// by two tiles belongs to the tile whose minimum edge it lies on; points on
// the outer maximum edge of the scheme fall back to closed containment.
func (s *Scheme) GetTile(pt orb.Point) (Tile, error) {
	hits := s.tree.SearchIntersect(rtreego.Point{pt[0], pt[1]}.ToRect(pointTolerance))

	candidates := make([]Tile, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, h.(*schemeEntry).tile)
	}
	// Deterministic order regardless of tree layout
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Name() < candidates[j].Name()
	})

	for _, t := range candidates {
		if t.containsHalfOpen(pt) {
			return t, nil
		}
	}
	for _, t := range candidates {
		if t.Bound.Contains(pt) {
			return t, nil
		}
	}
	return Tile{}, fmt.Errorf("%w: (%.3f, %.3f) at 1:%d", ErrOutOfScheme, pt[0], pt[1], s.scale)
}
