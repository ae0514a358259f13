package defs

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

//go:embed default.yaml
var defaultDefinitions []byte

// Validate checks data against the embedded CUE schema.
func Validate(name string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile definitions schema: %w", err)
	}
	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchema, name, err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchema, name, err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Definitions")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchema, name, err)
	}
	return nil
}

// Parse validates and resolves a YAML definitions document.
func Parse(name string, data []byte) (*Store, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoDefinitions
	}
	if err := Validate(name, data); err != nil {
		return nil, err
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return FromFile(file)
}

func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// EnsureLoaded loads path, or the stock definitions when path is empty.
func EnsureLoaded(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("definitions path %s is a directory", path)
	}
	return Load(path)
}

// Default parses the embedded stock definitions into a fresh Store.
func Default() (*Store, error) {
	store, err := Parse("default.yaml", defaultDefinitions)
	if err != nil {
		return nil, errors.Join(errors.New("stock definitions are broken"), err)
	}
	return store, nil
}

// DefaultYAML returns a copy of the embedded stock definitions.
func DefaultYAML() []byte {
	return bytes.Clone(defaultDefinitions)
}
