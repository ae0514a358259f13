// Package defs holds the parameter definitions that drive chunk analysis.
package defs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"example.com/powerchunk/internal/bitfield"
	"example.com/powerchunk/internal/numeric"
)

var (
	// ErrNoDefinitions is returned when a definitions file declares no
	// parameters. Analysis refuses to run on an empty table.
	ErrNoDefinitions = errors.New("defs: no parameter definitions")
	// ErrSchema wraps violations of the definitions schema.
	ErrSchema = errors.New("defs: schema violation")
	// ErrUnknownTable is returned when a bitfield parameter names a table
	// that is not declared.
	ErrUnknownTable = errors.New("defs: unknown bitfield table")
)

// Definition is either a Numeric or a Bitfield.
type Definition interface {
	ParamName() string
	isDefinition()
}

// Numeric describes a parameter analyzed as a range-checked number.
type Numeric struct {
	Name        string
	Description string
	Range       numeric.Range
}

// Bitfield describes a parameter decoded as a status register.
type Bitfield struct {
	Name        string
	Description string
	Table       *bitfield.Table
}

func (n Numeric) ParamName() string  { return n.Name }
func (b Bitfield) ParamName() string { return b.Name }
func (Numeric) isDefinition()        {}
func (Bitfield) isDefinition()       {}

// Store is the immutable, resolved definition table.
type Store struct {
	params map[string]Definition
	tables map[string]*bitfield.Table
}

// File mirrors the YAML document.
type File struct {
	Parameters map[string]ParamEntry `yaml:"parameters"`
	Bitfields  map[string]TableEntry `yaml:"bitfields"`
}

type ParamEntry struct {
	Type        string   `yaml:"type"`
	Min         *float64 `yaml:"min,omitempty"`
	Max         *float64 `yaml:"max,omitempty"`
	Unit        string   `yaml:"unit,omitempty"`
	Table       string   `yaml:"table,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

type TableEntry struct {
	Description string              `yaml:"description,omitempty"`
	Bits        map[string]BitEntry `yaml:"bits,omitempty"`
	ErrorCodes  map[string]string   `yaml:"errorCodes,omitempty"`
}

type BitEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// FromFile resolves file into a Store. Every parameter is bound to its
// concrete definition here, so lookups never re-inspect type tags.
func FromFile(file File) (*Store, error) {
	if len(file.Parameters) == 0 {
		return nil, ErrNoDefinitions
	}
	store := &Store{
		params: make(map[string]Definition, len(file.Parameters)),
		tables: make(map[string]*bitfield.Table, len(file.Bitfields)),
	}
	for _, name := range sortedKeys(file.Bitfields) {
		table, err := buildTable(name, file.Bitfields[name])
		if err != nil {
			return nil, err
		}
		store.tables[name] = table
	}
	for _, name := range sortedKeys(file.Parameters) {
		entry := file.Parameters[name]
		key := strings.TrimSpace(name)
		if key == "" {
			return nil, fmt.Errorf("%w: empty parameter name", ErrSchema)
		}
		switch strings.TrimSpace(entry.Type) {
		case "numeric":
			if entry.Min == nil || entry.Max == nil {
				return nil, fmt.Errorf("%w: parameters.%s: min and max are required", ErrSchema, key)
			}
			if *entry.Min > *entry.Max {
				return nil, fmt.Errorf("%w: parameters.%s: min greater than max", ErrSchema, key)
			}
			store.params[key] = Numeric{
				Name:        key,
				Description: strings.TrimSpace(entry.Description),
				Range:       numeric.Range{Min: *entry.Min, Max: *entry.Max, Unit: strings.TrimSpace(entry.Unit)},
			}
		case "bitfield":
			table, ok := store.tables[entry.Table]
			if !ok {
				return nil, fmt.Errorf("%w %q (parameters.%s)", ErrUnknownTable, entry.Table, key)
			}
			store.params[key] = Bitfield{Name: key, Description: strings.TrimSpace(entry.Description), Table: table}
		default:
			return nil, fmt.Errorf("%w: parameters.%s: unknown type %q", ErrSchema, key, entry.Type)
		}
	}
	return store, nil
}

func buildTable(name string, entry TableEntry) (*bitfield.Table, error) {
	table := &bitfield.Table{
		Name:       name,
		Bits:       make(map[int]bitfield.Bit, len(entry.Bits)),
		ErrorCodes: make(map[int]string, len(entry.ErrorCodes)),
	}
	for key, bit := range entry.Bits {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx < bitfield.MinFlagBit || idx > bitfield.MaxFlagBit {
			return nil, fmt.Errorf("%w: bitfields.%s: bit %q out of range", ErrSchema, name, key)
		}
		if strings.TrimSpace(bit.Name) == "" {
			return nil, fmt.Errorf("%w: bitfields.%s: bit %d has no name", ErrSchema, name, idx)
		}
		table.Bits[idx] = bitfield.Bit{Name: strings.TrimSpace(bit.Name), Description: strings.TrimSpace(bit.Description)}
	}
	for key, desc := range entry.ErrorCodes {
		code, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || code < 0 || code > bitfield.MaxErrorCode {
			return nil, fmt.Errorf("%w: bitfields.%s: error code %q out of range", ErrSchema, name, key)
		}
		table.ErrorCodes[code] = strings.TrimSpace(desc)
	}
	return table, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the definition of parameter name.
func (s *Store) Lookup(name string) (Definition, bool) {
	if s == nil {
		return nil, false
	}
	def, ok := s.params[name]
	return def, ok
}

// Table returns a bitfield table by name.
func (s *Store) Table(name string) (*bitfield.Table, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tables[name]
	return t, ok
}

// Names lists every defined parameter in lexical order.
func (s *Store) Names() []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.params)
}

func (s *Store) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.params) == 0
}
