package tileindex

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
)

type referenceEntry struct {
	geom  orb.Geometry
	bound orb.Bound
}

func (e *referenceEntry) Bounds() rtreego.Rect {
	return boundRect(e.bound)
}

// ReferenceIndex is an R-tree over the polygons of a supplied tile index.
// The geometries may have any attribute schema; only their shape is used.
type ReferenceIndex struct {
	tree  *rtreego.Rtree
	count int
}

// NewReferenceIndex indexes the given geometries
func NewReferenceIndex(geoms []orb.Geometry) *ReferenceIndex {
	objs := make([]rtreego.Spatial, 0, len(geoms))
	for _, g := range geoms {
		if g == nil {
			continue
		}
		objs = append(objs, &referenceEntry{geom: g, bound: g.Bound()})
	}
	return &ReferenceIndex{
		tree:  rtreego.NewTree(2, 25, 50, objs...),
		count: len(objs),
	}
}

// Count returns the number of indexed features
func (r *ReferenceIndex) Count() int { return r.count }

// IntersectsPositiveArea reports whether b shares a positive area with at
// least one indexed geometry. Boxes that only touch along an edge or at a
// corner do not count.
func (r *ReferenceIndex) IntersectsPositiveArea(b orb.Bound) bool {
	for _, hit := range r.tree.SearchIntersect(boundRect(b)) {
		e := hit.(*referenceEntry)
		// clip works in place
		clipped := clip.Geometry(b, orb.Clone(e.geom))
		if clipped != nil && planar.Area(clipped) > 0 {
			return true
		}
	}
	return false
}
