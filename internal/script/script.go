// Package script replays YAML batch scripts against a dom.Manager.
//
// A script is a list of batches. Every batch is a list of steps followed by
// an implicit EndBatch:
//
//	name: counter
//	root: {width: 320, height: 480}
//	batches:
//	  - steps:
//	      - op: create
//	        nodes:
//	          - {id: 1, tag: View}
//	          - {id: 2, pid: 1, tag: Text, props: {text: "0", width: 100, height: 20}}
//	      - op: listen
//	        id: 2
//	        event: click
//	  - steps:
//	      - op: event
//	        id: 2
//	        event: click
//	        payload: {x: 4}
//	      - op: update
//	        nodes:
//	          - {id: 2, props: {text: "1"}}
package script

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/domcore/internal/errors"
)

// Step operations.
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpMove     = "move"
	OpDelete   = "delete"
	OpListen   = "listen"
	OpUnlisten = "unlisten"
	OpEvent    = "event"
	OpSize     = "size"
	OpLayout   = "layout"
	OpCall     = "call"
)

// Script is a parsed replay script.
type Script struct {
	Name    string  `yaml:"name,omitempty"`
	Root    *Size   `yaml:"root,omitempty"`
	Batches []Batch `yaml:"batches"`

	file string
}

// Size is a root size.
type Size struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Batch is a group of steps committed together.
type Batch struct {
	Steps []Step `yaml:"steps"`
}

// Step is one scripted call on the manager.
type Step struct {
	Op string `yaml:"op"`

	// Nodes is used by create, update, move and delete.
	Nodes []NodeSpec `yaml:"nodes,omitempty"`

	// ID is the target node of listen, unlisten, event and call.
	ID uint32 `yaml:"id,omitempty"`

	// Event is the event name of listen, unlisten and event.
	Event   string `yaml:"event,omitempty"`
	Capture bool   `yaml:"capture,omitempty"`
	Payload any    `yaml:"payload,omitempty"`

	// Width and Height are used by size.
	Width  float64 `yaml:"width,omitempty"`
	Height float64 `yaml:"height,omitempty"`

	// Function and Arg are used by call.
	Function string `yaml:"function,omitempty"`
	Arg      any    `yaml:"arg,omitempty"`

	line int
}

// UnmarshalYAML records the line of the step for error reporting.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type plain Step
	if err := value.Decode((*plain)(s)); err != nil {
		return err
	}
	s.line = value.Line
	return nil
}

// Line returns the line the step starts on, or 0.
func (s Step) Line() int { return s.line }

// NodeSpec describes a node in create, update, move and delete steps.
type NodeSpec struct {
	ID    uint32         `yaml:"id"`
	PID   uint32         `yaml:"pid,omitempty"`
	Index int            `yaml:"index,omitempty"`
	Tag   string         `yaml:"tag,omitempty"`
	Props map[string]any `yaml:"props,omitempty"`
}

// Load reads and validates the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		de := errors.New("D020").Wrap(err)
		if stderrors.Is(err, fs.ErrNotExist) {
			de.WithSuggestion("Check the script path")
		}
		return nil, de
	}
	return Parse(path, data)
}

// Parse decodes and validates a script. name is used in error locations.
func Parse(name string, data []byte) (*Script, error) {
	s := &Script{file: name}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.New("D021").Wrap(err).WithLocationFromError(name, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that every step is well formed.
func (s *Script) Validate() error {
	for i, b := range s.Batches {
		for _, st := range b.Steps {
			if err := st.validate(); err != nil {
				return err.
					WithDetail(fmt.Sprintf("Batch %d, op %q: %s", i+1, st.Op, err.Detail)).
					WithLocation(s.file, st.line, 0)
			}
		}
	}
	return nil
}

func (s Step) validate() *errors.DomError {
	invalid := func(msg string) *errors.DomError {
		return errors.New("D024").WithDetail(msg)
	}
	switch s.Op {
	case OpCreate, OpUpdate, OpMove, OpDelete:
		if len(s.Nodes) == 0 {
			return invalid("nodes must not be empty")
		}
		for _, n := range s.Nodes {
			if n.ID == 0 {
				return invalid("every node needs a non-zero id")
			}
		}
	case OpListen, OpUnlisten, OpEvent:
		if s.ID == 0 || s.Event == "" {
			return invalid("id and event are required")
		}
	case OpCall:
		if s.ID == 0 || s.Function == "" {
			return invalid("id and function are required")
		}
	case OpSize, OpLayout:
	default:
		return errors.New("D022").WithDetail(fmt.Sprintf("unknown op %q", s.Op))
	}
	return nil
}

// Steps returns the total number of steps.
func (s *Script) Steps() int {
	n := 0
	for _, b := range s.Batches {
		n += len(b.Steps)
	}
	return n
}
