// Package testutil provides fixture generators for hierarchy and export tests.
// All generators produce deterministic output for reproducible tests.
package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

// PlantFixture is a generated store: hierarchy rows plus the elements
// attached to them.
type PlantFixture struct {
	Description string
	Rows        []model.Row
	Elements    []model.Element
	Triples     int
}

// GeneratorConfig controls fixture generation.
type GeneratorConfig struct {
	Seed       int64    // Random seed for determinism (0 = use current time)
	IDPrefix   string   // Prefix for node ids (default: "n")
	Categories []string // Element categories to draw from
	PathMode   bool     // Link rows by Path instead of ParentID
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:       42,
		IDPrefix:   "n",
		Categories: []string{"Wall", "Slab", "Column", "Beam", "Door", "Window", "Pipe"},
	}
}

// Generator creates plant fixtures with various shapes.
type Generator struct {
	cfg    GeneratorConfig
	rng    *rand.Rand
	nextID int
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "n"
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultConfig().Categories
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

func (g *Generator) id() string {
	id := fmt.Sprintf("%s%d", g.cfg.IDPrefix, g.nextID)
	g.nextID++
	return id
}

// row links a new row below parent. parentPath is only used in path mode.
func (g *Generator) row(name string, typ model.NodeType, parent *model.Row) model.Row {
	r := model.Row{ID: g.id(), Name: name, Type: typ}
	if parent == nil {
		if g.cfg.PathMode {
			r.Path = r.ID
		}
		return r
	}
	if g.cfg.PathMode {
		r.Path = parent.Path + "/" + r.ID
	} else {
		r.ParentID = parent.ID
	}
	return r
}

// Plant creates one project with the given number of buildings, storeys
// per building and spaces per storey. Each storey gets elementsPerStorey
// elements with categories picked at random.
func (g *Generator) Plant(buildings, storeys, spaces, elementsPerStorey int) PlantFixture {
	var f PlantFixture
	prj := g.row("Project", model.TypeProject, nil)
	f.Rows = append(f.Rows, prj)

	for b := 0; b < buildings; b++ {
		bld := g.row(fmt.Sprintf("Building %c", 'A'+rune(b%26)), model.TypeBuilding, &prj)
		bld.GlobalID = "g" + bld.ID
		f.Rows = append(f.Rows, bld)
		for s := 0; s < storeys; s++ {
			sty := g.row(fmt.Sprintf("Level %d", s), model.TypeStorey, &bld)
			sty.ElementCount = elementsPerStorey
			f.Rows = append(f.Rows, sty)
			for p := 0; p < spaces; p++ {
				f.Rows = append(f.Rows, g.row(fmt.Sprintf("Room %d.%02d", s, p+1), model.TypeSpace, &sty))
			}
			for e := 0; e < elementsPerStorey; e++ {
				cat := g.cfg.Categories[g.rng.Intn(len(g.cfg.Categories))]
				f.Elements = append(f.Elements, model.Element{
					URI:      fmt.Sprintf("urn:%s:%s-%d", sty.ID, strings.ToLower(cat), e),
					Name:     fmt.Sprintf("%s %d", cat, e),
					Category: cat,
				})
			}
		}
	}

	f.Triples = len(f.Rows)*4 + len(f.Elements)*3
	f.Description = fmt.Sprintf("Plant with %d buildings, %d storeys, %d spaces per storey (%d nodes, %d elements)",
		buildings, storeys, spaces, len(f.Rows), len(f.Elements))
	return f
}

// Chain creates a single path of depth nodes: c0 is the root and each
// next node is the only child of the previous one.
func (g *Generator) Chain(depth int) PlantFixture {
	var f PlantFixture
	var parent *model.Row
	for i := 0; i < depth; i++ {
		r := g.row(fmt.Sprintf("Level %d", i), model.TypeSpace, parent)
		f.Rows = append(f.Rows, r)
		parent = &f.Rows[len(f.Rows)-1]
	}
	f.Description = fmt.Sprintf("Chain of %d nested nodes", depth)
	return f
}

// Cycle creates size rows whose parent references form a ring. Only
// meaningful in parent mode.
func (g *Generator) Cycle(size int) PlantFixture {
	var f PlantFixture
	for i := 0; i < size; i++ {
		f.Rows = append(f.Rows, model.Row{ID: g.id(), Name: fmt.Sprintf("Loop %d", i), Type: model.TypeSpace})
	}
	for i := range f.Rows {
		f.Rows[i].ParentID = f.Rows[(i+1)%size].ID
	}
	f.Description = fmt.Sprintf("Parent cycle of %d nodes", size)
	return f
}

// Wide creates one building with n storeys directly below it.
func (g *Generator) Wide(n int) PlantFixture {
	var f PlantFixture
	bld := g.row("Building", model.TypeBuilding, nil)
	f.Rows = append(f.Rows, bld)
	for i := 0; i < n; i++ {
		sty := g.row(fmt.Sprintf("Level %03d", i), model.TypeStorey, &bld)
		sty.ElementCount = g.rng.Intn(50)
		f.Rows = append(f.Rows, sty)
	}
	f.Description = fmt.Sprintf("One building with %d storeys", n)
	return f
}

// exportLine is the JSONL export record shape.
type exportLine struct {
	Kind         string         `json:"kind"`
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name,omitempty"`
	Type         model.NodeType `json:"type,omitempty"`
	Path         string         `json:"path,omitempty"`
	Parent       string         `json:"parent,omitempty"`
	ElementCount int            `json:"element_count,omitempty"`
	GlobalID     string         `json:"global_id,omitempty"`
	URI          string         `json:"uri,omitempty"`
	Category     string         `json:"category,omitempty"`
	Key          string         `json:"key,omitempty"`
	Value        any            `json:"value,omitempty"`
}

// ToJSONL renders the fixture as a JSONL export, one record per line.
func ToJSONL(f PlantFixture) string {
	var sb strings.Builder
	write := func(l exportLine) {
		data, err := json.Marshal(l)
		if err != nil {
			return
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	for _, r := range f.Rows {
		write(exportLine{
			Kind: "node", ID: r.ID, Name: r.Name, Type: r.Type, Path: r.Path,
			Parent: r.ParentID, ElementCount: r.ElementCount, GlobalID: r.GlobalID,
		})
	}
	for _, e := range f.Elements {
		write(exportLine{Kind: "element", URI: e.URI, Name: e.Name, Category: e.Category, GlobalID: e.GlobalID})
	}
	if f.Triples > 0 {
		write(exportLine{Kind: "meta", Key: "triples", Value: f.Triples})
	}
	return sb.String()
}

// QuickPlant returns a small two-building plant.
func QuickPlant() PlantFixture {
	return NewDefault().Plant(2, 3, 2, 4)
}

// QuickChain returns a chain of depth nodes.
func QuickChain(depth int) PlantFixture {
	return NewDefault().Chain(depth)
}
