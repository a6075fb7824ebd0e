// Package scenefile reads scene scripts: ordered lists of host graph edits
// written as YAML, TOML or JSON.
//
// A script builds or mutates a memhost graph step by step, so a whole
// viewport session (scan, live edits, frames) can be replayed from a file:
//
//	name: two cubes
//	steps:
//	  - {op: shader, name: lambert2, type: lambert}
//	  - {op: engine, name: lambert2SG}
//	  - {op: bind, shader: lambert2, engine: lambert2SG}
//	  - {op: mesh, name: pCube1}
//	  - {op: assign, node: pCube1, engine: lambert2SG}
//	  - {op: frame, width: 1280, height: 720}
package scenefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a script encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for files whose extension names no
// supported format.
var ErrUnknownFormat = errors.New("unknown scene file format")

// FormatOf returns the format implied by a file name's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

// IsScript reports whether path names a supported script file.
func IsScript(path string) bool {
	_, err := FormatOf(path)
	return err == nil
}

// Op is the kind of a step.
type Op string

// Step operations.
const (
	OpMesh         Op = "mesh"         // create transform Name with shape NameShape
	OpCamera       Op = "camera"       // create camera transform Name with shape NameShape
	OpShader       Op = "shader"       // create shader Name of native Type
	OpEngine       Op = "engine"       // create shading engine Name
	OpFile         Op = "file"         // create file texture Name reading Path
	OpAssign       Op = "assign"       // connect mesh Node to Engine
	OpUnassign     Op = "unassign"     // disconnect mesh Node from Engine
	OpBind         Op = "bind"         // connect Shader to Engine
	OpUnbind       Op = "unbind"       // disconnect Shader from Engine
	OpTexture      Op = "texture"      // connect file Node into Shader.Plug
	OpSet          Op = "set"          // set Node.Plug to Float, Color or Text
	OpIntermediate Op = "intermediate" // mark mesh Node as intermediate
	OpRemove       Op = "remove"       // delete Node and its children
	OpRefresh      Op = "refresh"      // re-resolve every binding using Shader
	OpFrame        Op = "frame"        // render one Width x Height frame
)

// Document is one scene script.
type Document struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Steps []Step `json:"steps" yaml:"steps" toml:"steps"`
}

// Step is one graph edit. Which fields apply depends on Op.
type Step struct {
	Op     Op     `json:"op" yaml:"op" toml:"op"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Node   string `json:"node,omitempty" yaml:"node,omitempty" toml:"node,omitempty"`
	Engine string `json:"engine,omitempty" yaml:"engine,omitempty" toml:"engine,omitempty"`
	Shader string `json:"shader,omitempty" yaml:"shader,omitempty" toml:"shader,omitempty"`
	Plug   string `json:"plug,omitempty" yaml:"plug,omitempty" toml:"plug,omitempty"`

	// ===== Attribute values (set) =====
	Float *float32  `json:"float,omitempty" yaml:"float,omitempty" toml:"float,omitempty"`
	Color []float32 `json:"color,omitempty" yaml:"color,omitempty" toml:"color,omitempty"`
	Text  *string   `json:"text,omitempty" yaml:"text,omitempty" toml:"text,omitempty"`

	// ===== Frame size (frame) =====
	Width  int `json:"width,omitempty" yaml:"width,omitempty" toml:"width,omitempty"`
	Height int `json:"height,omitempty" yaml:"height,omitempty" toml:"height,omitempty"`
}

// Validate checks that the step carries the fields its op needs.
func (s *Step) Validate() error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("%s requires %s", s.Op, field)
		}
		return nil
	}
	switch s.Op {
	case OpMesh, OpCamera, OpEngine:
		return need("name", s.Name)
	case OpShader:
		return errors.Join(need("name", s.Name), need("type", s.Type))
	case OpFile:
		return errors.Join(need("name", s.Name), need("path", s.Path))
	case OpAssign, OpUnassign:
		return errors.Join(need("node", s.Node), need("engine", s.Engine))
	case OpBind, OpUnbind:
		return errors.Join(need("shader", s.Shader), need("engine", s.Engine))
	case OpTexture:
		return errors.Join(need("node", s.Node), need("shader", s.Shader), need("plug", s.Plug))
	case OpSet:
		if err := errors.Join(need("node", s.Node), need("plug", s.Plug)); err != nil {
			return err
		}
		values := 0
		if s.Float != nil {
			values++
		}
		if s.Color != nil {
			if len(s.Color) != 3 {
				return fmt.Errorf("set color needs 3 components (got %d)", len(s.Color))
			}
			values++
		}
		if s.Text != nil {
			values++
		}
		if values != 1 {
			return fmt.Errorf("set needs exactly one of float, color or text (got %d)", values)
		}
		return nil
	case OpIntermediate, OpRemove:
		return need("node", s.Node)
	case OpRefresh:
		return need("shader", s.Shader)
	case OpFrame:
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("frame size must be positive (got %dx%d)", s.Width, s.Height)
		}
		return nil
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}

// Validate checks every step.
func (d *Document) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("document has no steps")
	}
	for i := range d.Steps {
		if err := d.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Frames returns the number of frame steps.
func (d *Document) Frames() int {
	n := 0
	for _, s := range d.Steps {
		if s.Op == OpFrame {
			n++
		}
	}
	return n
}

// Decode parses and validates a script in the given format.
func Decode(data []byte, format Format) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s scene: %w", format, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scene: %w", err)
	}
	return &doc, nil
}

// Read reads and parses a script file. The format follows the extension.
func Read(path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file %s: %w", path, err)
	}
	doc, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// ReadDir reads every script in dir in lexical order. Invalid files are
// skipped with a warning to stderr.
func ReadDir(dir string) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read scene directory: %w", err)
	}

	var docs []*Document
	for _, entry := range entries {
		if entry.IsDir() || !IsScript(entry.Name()) {
			continue
		}
		doc, err := Read(filepath.Join(dir, entry.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid scene file %s: %v\n", entry.Name(), err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
