// Package psid checks the point source ids recorded in point cloud tiles
// against the flightlines supplied with a survey.
package psid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wegman-software/lidarqc-go/internal/extract"
	"github.com/wegman-software/lidarqc-go/internal/vector"
)

// ReportName is the text report written into the output directory
const ReportName = "point_source_ids.txt"

// Set is a set of point source or flightline ids
type Set map[int]struct{}

// NewSet builds a set from ids
func NewSet(ids ...int) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Sorted returns the ids in ascending order
func (s Set) Sorted() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Minus returns the ids in s that are not in other
func (s Set) Minus(other Set) Set {
	out := make(Set)
	for id := range s {
		if _, ok := other[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s Set) String() string {
	return formatIDs(s.Sorted())
}

func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// TileIDs is the set of point source ids found in one tile
type TileIDs struct {
	Tile string
	IDs  []int
}

type pdalStats struct {
	Stats *struct {
		Statistic []struct {
			Name   string    `json:"name"`
			Values []float64 `json:"values"`
		} `json:"statistic"`
	} `json:"stats"`
}

// ParsePdalStats reads the enumerated PointSourceId values from pdal info JSON
func ParsePdalStats(data []byte) ([]int, error) {
	var doc pdalStats
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid pdal info output: %w", err)
	}
	if doc.Stats == nil || len(doc.Stats.Statistic) == 0 {
		return nil, errors.New("pdal info output has no statistics")
	}

	stat := doc.Stats.Statistic[0]
	for _, s := range doc.Stats.Statistic {
		if s.Name == "PointSourceId" {
			stat = s
			break
		}
	}

	ids := make([]int, len(stat.Values))
	for i, v := range stat.Values {
		ids[i] = int(v)
	}
	sort.Ints(ids)
	return ids, nil
}

// Extractor runs pdal info per tile
type Extractor struct {
	Runner extract.Runner
	Tool   string
}

// Extract enumerates the point source ids of one tile
func (e *Extractor) Extract(ctx context.Context, path string) (TileIDs, error) {
	tile := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cmd := extract.Cmd{Name: e.Tool, Args: []string{
		"info", "--stats", path,
		"--filters.stats.dimensions=PointSourceId",
		"--enumerate=PointSourceId",
	}}

	res, err := e.Runner.Run(ctx, cmd)
	if err != nil {
		return TileIDs{Tile: tile}, &extract.ExtractionError{Path: path, Tool: e.Tool, Stderr: string(res.Stderr), Err: err}
	}
	if len(strings.TrimSpace(string(res.Stderr))) > 0 {
		return TileIDs{Tile: tile}, &extract.ExtractionError{Path: path, Tool: e.Tool, Stderr: string(res.Stderr)}
	}

	ids, err := ParsePdalStats(res.Stdout)
	if err != nil {
		return TileIDs{Tile: tile}, &extract.ExtractionError{Path: path, Tool: e.Tool, Err: err}
	}
	return TileIDs{Tile: tile, IDs: ids}, nil
}

// DatasetIDs unions the ids of every tile
func DatasetIDs(tiles []TileIDs) Set {
	s := make(Set)
	for _, t := range tiles {
		for _, id := range t.IDs {
			s[id] = struct{}{}
		}
	}
	return s
}

// FlightlineIDs reads the id attribute of every flightline feature
func FlightlineIDs(path, field string) (Set, error) {
	features, err := vector.ReadFile(path, "")
	if err != nil {
		return nil, err
	}

	ids := make(Set, len(features))
	for i, f := range features {
		id, ok := f.Int(field)
		if !ok {
			return nil, fmt.Errorf("flightline %d in %s has no integer %q attribute", i, filepath.Base(path), field)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Issue is one mismatch between flightline and point source ids
type Issue struct {
	Key     string
	Message string
	IDs     Set
}

// Compare finds ids present on only one side
func Compare(flightIDs, psids Set) []Issue {
	var issues []Issue
	if extra := flightIDs.Minus(psids); len(extra) > 0 {
		issues = append(issues, Issue{
			Key:     "Extra Flightlines",
			Message: fmt.Sprintf("There are more flightline id's than point source id's by %d", len(extra)),
			IDs:     extra,
		})
	}
	if extra := psids.Minus(flightIDs); len(extra) > 0 {
		issues = append(issues, Issue{
			Key:     "Extra psids",
			Message: fmt.Sprintf("There are more point source id's than flightline id's by %d", len(extra)),
			IDs:     extra,
		})
	}
	return issues
}
