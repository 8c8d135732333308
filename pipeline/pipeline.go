// Package pipeline holds the declarative routing tables that drive executions.
//
// A Definition is an ordered list of entries. Each entry maps the activity that just completed
// (or Start for a new execution), optionally narrowed by a branch predicate over the completed
// result, to the next activity or to completion of the execution.
package pipeline

import (
	"fmt"
	"slices"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cschleiden/go-mediaflow/core"
)

// Start is the pseudo activity an execution begins in.
const Start = "start"

// Predicate selects an entry based on the completed result. It matches when any of Fields has a
// value contained in In. Negate inverts the match. A predicate never matches a result in which
// none of Fields is set, negated or not.
type Predicate struct {
	Fields []string `toml:"fields" json:"fields"`
	In     []string `toml:"in" json:"in"`
	Negate bool     `toml:"negate" json:"negate,omitempty"`
}

func (p *Predicate) Matches(r core.Record) bool {
	if p == nil {
		return true
	}

	resolved, matched := false, false
	for _, f := range p.Fields {
		v, ok := r.Lookup(f)
		if !ok {
			continue
		}

		resolved = true
		if slices.Contains(p.In, v) {
			matched = true
			break
		}
	}

	if !resolved {
		return false
	}

	return matched != p.Negate
}

func (p *Predicate) String() string {
	if p == nil {
		return "*"
	}

	op := "in"
	if p.Negate {
		op = "not in"
	}

	return fmt.Sprintf("%v %s %v", p.Fields, op, p.In)
}

// InputRule builds the input of the next activity from the completed result. Every field is
// carried forward unless it's explicitly dropped.
type InputRule struct {
	Drop []string `toml:"drop" json:"drop,omitempty"`
}

type Entry struct {
	From     string     `toml:"from" json:"from"`
	Branch   *Predicate `toml:"branch" json:"branch,omitempty"`
	To       string     `toml:"to" json:"to,omitempty"`
	Queue    core.Queue `toml:"queue" json:"queue,omitempty"`
	Input    InputRule  `toml:"input" json:"input"`
	Terminal bool       `toml:"terminal" json:"terminal,omitempty"`
}

// NextQueue is the queue the next activity is scheduled on. Defaults to the activity name.
func (e *Entry) NextQueue() core.Queue {
	if e.Queue != "" {
		return e.Queue
	}

	return core.Queue(e.To)
}

// BuildInput derives the next input from a result. Asset, asset class, and catalog key always
// carry over unchanged.
func (e *Entry) BuildInput(result core.Record) core.Record {
	next := result.Clone()
	for _, f := range e.Input.Drop {
		delete(next.Fields, f)
	}

	return next
}

func (e *Entry) String() string {
	to := e.To
	if e.Terminal {
		to = "<complete>"
	}

	return fmt.Sprintf("%s [%s] -> %s", e.From, e.Branch, to)
}

type Definition struct {
	// Name is the workflow type executions of this definition are started with.
	Name string `toml:"name" json:"name"`

	Version string `toml:"version" json:"version"`

	// InputSchema is an optional JSON schema the start record has to satisfy.
	InputSchema string `toml:"input_schema" json:"input_schema,omitempty"`

	Entries []Entry `toml:"entries" json:"entries"`

	schema *gojsonschema.Schema
}

// Lookup finds the single entry for the activity that produced result. Zero or multiple matching
// entries are reported as a *RoutingError.
func (d *Definition) Lookup(from string, result core.Record) (*Entry, error) {
	var match *Entry
	var matches []string

	for i := range d.Entries {
		e := &d.Entries[i]
		if e.From != from || !e.Branch.Matches(result) {
			continue
		}

		if match == nil {
			match = e
		}
		matches = append(matches, e.String())
	}

	switch len(matches) {
	case 0:
		return nil, &RoutingError{Definition: d.Name, From: from, Result: result.Summary(), Err: ErrNoRoute}
	case 1:
		return match, nil
	default:
		return nil, &RoutingError{Definition: d.Name, From: from, Result: result.Summary(), Matches: matches, Err: ErrAmbiguousRoute}
	}
}

// Activities returns the names of all activities the definition can schedule, in table order.
func (d *Definition) Activities() []string {
	var r []string
	for _, e := range d.Entries {
		if e.To != "" && !slices.Contains(r, e.To) {
			r = append(r, e.To)
		}
	}

	return r
}

// Queues returns the queues the definition schedules activities on, in table order.
func (d *Definition) Queues() []core.Queue {
	var r []core.Queue
	for i := range d.Entries {
		e := &d.Entries[i]
		if e.Terminal {
			continue
		}

		if q := e.NextQueue(); !slices.Contains(r, q) {
			r = append(r, q)
		}
	}

	return r
}
