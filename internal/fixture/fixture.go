// Package fixture reads IR queries written as YAML.
//
// A fixture lists the query's locations with their metadata, the revisits
// between them, and the blocks in order:
//
//	name: simple_optional
//	description: optional edge with no nested vertices
//	locations:
//	  - {location: Animal, type: Animal}
//	  - {location: Animal/out_Animal_ParentOf, type: Animal, optional_depth: 1}
//	  - {location: "Animal#2", type: Animal}
//	revisits:
//	  - {revisit: "Animal#2", origin: Animal}
//	blocks:
//	  - query_root: [Animal]
//	  - mark_location: Animal
//	  - traverse: {direction: out, edge: Animal_ParentOf, optional: true}
//	  ...
//
// Location syntax is path[#visit][.field] for vertex locations, where path
// is the root type followed by vertex fields joined with "/", and
// base@edge[/edge...][.field] for locations inside a fold.
package fixture

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/graphc/internal/ir"
)

// File is the YAML document.
type File struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Locations   []LocationSpec `yaml:"locations"`
	Revisits    []RevisitSpec  `yaml:"revisits,omitempty"`
	Blocks      []yaml.Node    `yaml:"blocks"`

	// Hints are type equivalence hints passed to the Gremlin backend.
	Hints map[string][]string `yaml:"type_equivalence_hints,omitempty"`

	// Expect maps a backend name to the expected outcome: "ok" to compare
	// against a golden file, or an error kind ("not_implemented",
	// "compilation_error", "assertion", "validation").
	Expect map[string]string `yaml:"expect,omitempty"`
}

// LocationSpec registers one vertex location in the metadata table.
type LocationSpec struct {
	Location      string `yaml:"location"`
	Type          string `yaml:"type"`
	CoercedFrom   string `yaml:"coerced_from,omitempty"`
	OptionalDepth int    `yaml:"optional_depth,omitempty"`
	RecurseDepth  int    `yaml:"recurse_depth,omitempty"`
	InFold        bool   `yaml:"in_fold,omitempty"`
}

// RevisitSpec records that Revisit is a later visit of Origin.
type RevisitSpec struct {
	Revisit string `yaml:"revisit"`
	Origin  string `yaml:"origin"`
}

// Query is a decoded fixture.
type Query struct {
	Name        string
	Description string
	Blocks      []ir.Block
	Meta        *ir.QueryMetadataTable
	Hints       map[string][]string
	Expect      map[string]string
}

// Load reads and decodes a fixture file. Unknown keys are rejected.
func Load(path string) (*Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	q, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

// Parse decodes a fixture document.
func Parse(data []byte) (*Query, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateFile(&f); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}

	meta, err := buildMeta(f.Locations, f.Revisits)
	if err != nil {
		return nil, err
	}
	blocks := make([]ir.Block, len(f.Blocks))
	for i := range f.Blocks {
		b, err := decodeBlock(&f.Blocks[i])
		if err != nil {
			return nil, fmt.Errorf("blocks[%d]: %w", i, err)
		}
		blocks[i] = b
	}
	return &Query{
		Name:        f.Name,
		Description: f.Description,
		Blocks:      blocks,
		Meta:        meta,
		Hints:       f.Hints,
		Expect:      f.Expect,
	}, nil
}

func validateFile(f *File) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(f.Locations) == 0 {
		return fmt.Errorf("locations list is required and must be non-empty")
	}
	if len(f.Blocks) == 0 {
		return fmt.Errorf("blocks list is required and must be non-empty")
	}
	for i, l := range f.Locations {
		if l.Location == "" || l.Type == "" {
			return fmt.Errorf("locations[%d]: location and type are required", i)
		}
	}
	for backend, outcome := range f.Expect {
		switch outcome {
		case "ok", "not_implemented", "compilation_error", "assertion", "validation":
		default:
			return fmt.Errorf("expect[%s]: unknown outcome %q", backend, outcome)
		}
	}
	return nil
}

func buildMeta(locs []LocationSpec, revisits []RevisitSpec) (*ir.QueryMetadataTable, error) {
	meta := ir.NewQueryMetadataTable()
	for i, spec := range locs {
		loc, err := ParseLocation(spec.Location)
		if err != nil {
			return nil, fmt.Errorf("locations[%d]: %w", i, err)
		}
		typ, err := ir.ParseType(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("locations[%d]: %w", i, err)
		}
		info := ir.LocationInfo{
			Type:                 typ,
			OptionalScopesDepth:  spec.OptionalDepth,
			RecursiveScopesDepth: spec.RecurseDepth,
			IsWithinFold:         spec.InFold,
		}
		if spec.CoercedFrom != "" {
			if info.CoercedFromType, err = ir.ParseType(spec.CoercedFrom); err != nil {
				return nil, fmt.Errorf("locations[%d]: %w", i, err)
			}
		}
		if err := meta.RegisterLocation(loc, info); err != nil {
			return nil, fmt.Errorf("locations[%d]: %w", i, err)
		}
	}
	for i, r := range revisits {
		revisit, err := parseVertexLocation(r.Revisit)
		if err != nil {
			return nil, fmt.Errorf("revisits[%d]: %w", i, err)
		}
		origin, err := parseVertexLocation(r.Origin)
		if err != nil {
			return nil, fmt.Errorf("revisits[%d]: %w", i, err)
		}
		meta.RegisterRevisit(revisit, origin)
	}
	return meta, nil
}

// ParseLocation parses either location syntax.
func ParseLocation(s string) (ir.BaseLocation, error) {
	base, foldPart, isFold := strings.Cut(s, "@")
	if !isFold {
		return parseLocation(s)
	}

	baseLoc, err := parseLocation(base)
	if err != nil {
		return nil, err
	}
	if baseLoc.HasField() {
		return nil, fmt.Errorf("fold base %q must not name a field", base)
	}
	foldPath, field, _ := strings.Cut(foldPart, ".")
	var steps []ir.EdgeStep
	for _, seg := range strings.Split(foldPath, "/") {
		step, err := ir.ParseVertexField(seg)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return ir.NewFoldScopeLocation(baseLoc, steps, field)
}

func parseLocation(s string) (ir.Location, error) {
	rest, field, _ := strings.Cut(s, ".")
	path, visitText, hasVisit := strings.Cut(rest, "#")
	visit := 1
	if hasVisit {
		n, err := strconv.Atoi(visitText)
		if err != nil {
			return ir.Location{}, fmt.Errorf("bad visit counter in %q: %w", s, err)
		}
		visit = n
	}
	return ir.NewLocation(strings.Split(path, "/"), field, visit)
}

func parseVertexLocation(s string) (ir.Location, error) {
	loc, err := parseLocation(s)
	if err != nil {
		return ir.Location{}, err
	}
	if loc.HasField() {
		return ir.Location{}, fmt.Errorf("%q must point at a vertex", s)
	}
	return loc, nil
}
