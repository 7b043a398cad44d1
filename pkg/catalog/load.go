package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/algomatic/stratgraph/pkg/ir"
)

// ErrCatalogLoad is wrapped by every LoadError.
var ErrCatalogLoad = errors.New("catalog load failed")

// LoadError reports a catalog that could not be read, parsed or accepted.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load catalog %s: %v", e.Source, e.Err)
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrCatalogLoad, e.Err}
}

//go:embed catalog.yaml
var embedded []byte

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return load(bytes.NewReader(embedded), "embedded")
})

// Default returns the catalog compiled into the binary. It is parsed on the
// first call; later calls return the same value.
func Default() (*Catalog, error) {
	return defaultCatalog()
}

// Load parses a catalog document. YAML and JSON are both accepted; the
// catalog lives under a top-level "dsl_spec" key.
func Load(r io.Reader) (*Catalog, error) {
	return load(r, "reader")
}

// LoadFile parses the catalog document at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	defer f.Close()
	return load(f, path)
}

type document struct {
	Spec *spec `yaml:"dsl_spec"`
}

type spec struct {
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Types       []string `yaml:"types"`
	Operators   Operators
	Offsets     struct {
		Units []string `yaml:"units"`
	} `yaml:"offsets"`
	QtyTypes   []string       `yaml:"qty_types"`
	Timeframes []string       `yaml:"timeframes"`
	Functions  []FunctionSpec `yaml:"functions"`
	Actions    []ActionSpec   `yaml:"actions"`
}

func load(r io.Reader, source string) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if doc.Spec == nil {
		return nil, &LoadError{Source: source, Err: errors.New("missing dsl_spec")}
	}
	c, err := build(doc.Spec)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	return c, nil
}

func build(s *spec) (*Catalog, error) {
	if len(s.Functions) == 0 {
		return nil, errors.New("no functions defined")
	}
	if len(s.Actions) == 0 {
		return nil, errors.New("no actions defined")
	}
	if len(s.Operators.Comparison) == 0 {
		return nil, errors.New("no comparison operators defined")
	}

	c := &Catalog{
		version:     s.Version,
		description: s.Description,
		types:       s.Types,
		operators:   s.Operators,
		offsetUnits: s.Offsets.Units,
		qtyKinds:    s.QtyTypes,
		timeframes:  s.Timeframes,
		functions:   s.Functions,
		actions:     s.Actions,
		fnIndex:     make(map[string]int, len(s.Functions)),
		actIndex:    make(map[string]int, len(s.Actions)),
	}
	if len(c.qtyKinds) == 0 {
		c.qtyKinds = []string{string(ir.QtyAbsolute), string(ir.QtyPercentEquity), string(ir.QtyPercentPosition)}
	}

	for i, f := range s.Functions {
		if f.Name == "" {
			return nil, fmt.Errorf("function %d has no name", i)
		}
		if _, dup := c.fnIndex[f.Name]; dup {
			return nil, fmt.Errorf("duplicate function %q", f.Name)
		}
		c.fnIndex[f.Name] = i
	}
	for i, a := range s.Actions {
		if _, dup := c.actIndex[a.Name]; dup {
			return nil, fmt.Errorf("duplicate action %q", a.Name)
		}
		if !ir.ActionKind(a.Name).Known() {
			return nil, fmt.Errorf("action %q is not a modeled action kind", a.Name)
		}
		c.actIndex[a.Name] = i
	}
	for _, q := range c.qtyKinds {
		switch ir.QtyKind(q) {
		case ir.QtyAbsolute, ir.QtyPercentEquity, ir.QtyPercentPosition:
		default:
			return nil, fmt.Errorf("qty type %q is not a modeled quantity kind", q)
		}
	}
	return c, nil
}

// MarshalJSON renders the catalog in its source shape.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	type offsets struct {
		Units []string `json:"units"`
	}
	return json.Marshal(struct {
		Version     string         `json:"version"`
		Description string         `json:"description"`
		Types       []string       `json:"types"`
		Operators   Operators      `json:"operators"`
		Offsets     offsets        `json:"offsets"`
		QtyTypes    []string       `json:"qtyTypes"`
		Timeframes  []string       `json:"timeframes"`
		Functions   []FunctionSpec `json:"functions"`
		Actions     []ActionSpec   `json:"actions"`
	}{
		Version:     c.version,
		Description: c.description,
		Types:       c.types,
		Operators:   c.operators,
		Offsets:     offsets{c.offsetUnits},
		QtyTypes:    c.qtyKinds,
		Timeframes:  c.timeframes,
		Functions:   c.functions,
		Actions:     c.actions,
	})
}
