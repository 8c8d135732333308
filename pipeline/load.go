package pipeline

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"slices"

	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/cschleiden/go-mediaflow/core"
)

//go:embed definitions/*.toml
var definitionsFS embed.FS

const (
	Ingest    = "ingest"
	Lifecycle = "lifecycle"
)

// Builtin returns one of the definitions shipped with the module.
func Builtin(name string) (*Definition, error) {
	data, err := definitionsFS.ReadFile(path.Join("definitions", name+".toml"))
	if err != nil {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}

	return Parse(data)
}

// MustBuiltin is like Builtin but panics on error.
func MustBuiltin(name string) *Definition {
	d, err := Builtin(name)
	if err != nil {
		panic(err)
	}

	return d
}

// Load reads a definition from a TOML file.
func Load(file string) (*Definition, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline definition: %w", err)
	}

	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	return d, nil
}

// Parse decodes and validates a TOML definition.
func Parse(data []byte) (*Definition, error) {
	var d Definition

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding pipeline definition: %w", err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// Validate checks the table for defects that can be found without a result at hand. Predicates
// that overlap only for some values are detected when routing.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("pipeline definition without name")
	}

	froms := map[string][]*Entry{}
	for i := range d.Entries {
		e := &d.Entries[i]

		if e.From == "" {
			return fmt.Errorf("%s: entry %d without from", d.Name, i)
		}

		if e.Terminal {
			if e.To != "" {
				return fmt.Errorf("%s: terminal entry %s must not schedule %q", d.Name, e, e.To)
			}
		} else {
			if e.To == "" {
				return fmt.Errorf("%s: entry %d from %q needs either a target or terminal", d.Name, i, e.From)
			}
			if e.To == Start {
				return fmt.Errorf("%s: entry %s routes back to start", d.Name, e)
			}
			if err := core.ValidQueue(e.NextQueue()); err != nil {
				return fmt.Errorf("%s: entry %s: %w", d.Name, e, err)
			}
		}

		if e.Branch != nil && (len(e.Branch.Fields) == 0 || len(e.Branch.In) == 0) {
			return fmt.Errorf("%s: entry %s has an empty branch predicate", d.Name, e)
		}

		for _, f := range e.Input.Drop {
			if f == core.FieldAsset || f == core.FieldAssetClass || f == core.FieldCatalogKey {
				return fmt.Errorf("%s: entry %s drops carried field %q", d.Name, e, f)
			}
		}

		froms[e.From] = append(froms[e.From], e)
	}

	if len(froms[Start]) == 0 {
		return fmt.Errorf("%s: no entry from %q", d.Name, Start)
	}

	for from, entries := range froms {
		if len(entries) > 1 {
			for _, e := range entries {
				if e.Branch == nil {
					return fmt.Errorf("%s: %w: unconditional entry %s competes with %d other entries from %q",
						d.Name, ErrAmbiguousRoute, e, len(entries)-1, from)
				}
			}

			if err := checkOverlap(d.Name, entries); err != nil {
				return err
			}
		}
	}

	for i := range d.Entries {
		e := &d.Entries[i]
		if !e.Terminal && len(froms[e.To]) == 0 {
			return fmt.Errorf("%s: %w: activity %q is scheduled but never routed", d.Name, ErrNoRoute, e.To)
		}
	}

	if d.InputSchema != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(d.InputSchema))
		if err != nil {
			return fmt.Errorf("%s: compiling input schema: %w", d.Name, err)
		}

		d.schema = schema
	}

	return nil
}

// checkOverlap rejects positive predicates over the same fields that share a value.
func checkOverlap(name string, entries []*Entry) error {
	for i, a := range entries {
		for _, b := range entries[i+1:] {
			if a.Branch.Negate || b.Branch.Negate || !slices.Equal(a.Branch.Fields, b.Branch.Fields) {
				continue
			}

			for _, v := range a.Branch.In {
				if slices.Contains(b.Branch.In, v) {
					return fmt.Errorf("%s: %w: entries %s and %s both match %q", name, ErrAmbiguousRoute, a, b, v)
				}
			}
		}
	}

	return nil
}

// ValidateInput checks a start record against the input schema of the definition.
func (d *Definition) ValidateInput(r core.Record) error {
	if d.schema == nil {
		return nil
	}

	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling input: %w", err)
	}

	res, err := d.schema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return fmt.Errorf("validating input: %w", err)
	}

	if !res.Valid() {
		msg := ""
		for i, e := range res.Errors() {
			if i > 0 {
				msg += "; "
			}
			msg += e.String()
		}

		return fmt.Errorf("invalid input for %s: %s", d.Name, msg)
	}

	return nil
}
