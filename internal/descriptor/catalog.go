package descriptor

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

type Descriptor struct {
	ID          string  `yaml:"id" json:"id"`
	Label       string  `yaml:"label" json:"label"`
	Description string  `yaml:"description" json:"description"`
	Min         float64 `yaml:"min" json:"min"`
	Max         float64 `yaml:"max" json:"max"`
	Step        float64 `yaml:"step" json:"step"`
	Default     float64 `yaml:"default" json:"default"`
	Low         string  `yaml:"low" json:"low"`
	High        string  `yaml:"high" json:"high"`
}

// Values maps a descriptor id to its weight.
type Values map[string]float64

func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Template is a named inspiration preset.
type Template struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Prompt      string `yaml:"prompt" json:"prompt"`
	Descriptors Values `yaml:"descriptors" json:"descriptors"`
}

type Catalog struct {
	descriptors []Descriptor
	byID        map[string]int
	templates   []Template
	tplByID     map[string]int
}

type catalogFile struct {
	Descriptors []Descriptor `yaml:"descriptors"`
	Templates   []Template   `yaml:"templates"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("descriptor: embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(file.Descriptors) == 0 {
		return nil, errors.New("catalog has no descriptors")
	}

	c := &Catalog{
		byID:    make(map[string]int, len(file.Descriptors)),
		tplByID: make(map[string]int, len(file.Templates)),
	}

	for _, d := range file.Descriptors {
		d.ID = strings.TrimSpace(d.ID)
		switch {
		case d.ID == "":
			return nil, errors.New("descriptor with empty id")
		case d.Min >= d.Max:
			return nil, fmt.Errorf("descriptor %q: min must be below max", d.ID)
		case d.Default < d.Min || d.Default > d.Max:
			return nil, fmt.Errorf("descriptor %q: default %v outside [%v, %v]", d.ID, d.Default, d.Min, d.Max)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate descriptor %q", d.ID)
		}
		if d.Step <= 0 {
			d.Step = 1
		}
		if d.Label == "" {
			d.Label = d.ID
		}
		c.byID[d.ID] = len(c.descriptors)
		c.descriptors = append(c.descriptors, d)
	}

	for _, t := range file.Templates {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, errors.New("template with empty id")
		}
		if _, dup := c.tplByID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template %q", t.ID)
		}
		for id := range t.Descriptors {
			if _, ok := c.byID[id]; !ok {
				return nil, fmt.Errorf("template %q references unknown descriptor %q", t.ID, id)
			}
		}
		t.Descriptors = c.Normalize(t.Descriptors)
		c.tplByID[t.ID] = len(c.templates)
		c.templates = append(c.templates, t)
	}

	return c, nil
}

func (c *Catalog) Descriptors() []Descriptor {
	return append([]Descriptor(nil), c.descriptors...)
}

func (c *Catalog) Lookup(id string) (Descriptor, bool) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Descriptor{}, false
	}
	return c.descriptors[idx], true
}

// Defaults returns a fresh value set with every descriptor at its default.
func (c *Catalog) Defaults() Values {
	out := make(Values, len(c.descriptors))
	for _, d := range c.descriptors {
		out[d.ID] = d.Default
	}
	return out
}

// Clamp bounds value to the descriptor's range. ok is false for unknown ids.
func (c *Catalog) Clamp(id string, value float64) (float64, bool) {
	d, ok := c.Lookup(id)
	if !ok {
		return 0, false
	}
	return d.clamp(value), true
}

// Normalize merges values onto the defaults, clamping known ids and dropping
// unknown ones.
func (c *Catalog) Normalize(values Values) Values {
	out := c.Defaults()
	for id, v := range values {
		d, ok := c.Lookup(id)
		if !ok {
			continue
		}
		out[d.ID] = d.clamp(v)
	}
	return out
}

func (c *Catalog) Templates() []Template {
	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, cloneTemplate(t))
	}
	return out
}

func (c *Catalog) Template(id string) (Template, bool) {
	idx, ok := c.tplByID[strings.TrimSpace(id)]
	if !ok {
		return Template{}, false
	}
	return cloneTemplate(c.templates[idx]), true
}

// Level renders value as a qualitative phrase built from the descriptor's
// low and high words.
func (d Descriptor) Level(value float64) string {
	t := (d.clamp(value) - d.Min) / (d.Max - d.Min)
	switch {
	case t < 0.2:
		return "strongly " + d.Low
	case t < 0.4:
		return "somewhat " + d.Low
	case t <= 0.6:
		return "balanced between " + d.Low + " and " + d.High
	case t <= 0.8:
		return "somewhat " + d.High
	default:
		return "strongly " + d.High
	}
}

func (d Descriptor) clamp(value float64) float64 {
	if math.IsNaN(value) {
		return d.Default
	}
	if value < d.Min {
		return d.Min
	}
	if value > d.Max {
		return d.Max
	}
	return value
}

func cloneTemplate(t Template) Template {
	t.Descriptors = t.Descriptors.Clone()
	return t
}
