package runs

import "fmt"

// Section names a group of related statistics on the end-of-run screens.
type Section string

// Key identifies one statistic. Keys are unique across all sections.
type Key string

// Kind describes the textual encoding a field expects.
type Kind string

const (
	KindLargeNumber Kind = "large_number"
	KindInteger     Kind = "integer"
	KindIntegerPlus Kind = "integer_plus"
	KindTimespan    Kind = "timespan"
	KindMultiplier  Kind = "multiplier"
	KindText        Kind = "text"
)

// FieldConfig binds a key to the label printed on screen and to the pair of
// functions that validate and parse its raw text. Parse may return NaN for
// input Validate rejects; callers validate first.
type FieldConfig struct {
	Label    string
	Kind     Kind
	Validate func(raw string) bool
	Parse    func(raw string) float64
}

// Numeric reports whether parsed values of this field are meaningful numbers.
func (c FieldConfig) Numeric() bool {
	return c.Kind != KindText
}

// WithLabel returns a copy of c using label instead of the derived one.
func (c FieldConfig) WithLabel(label string) FieldConfig {
	c.Label = label
	return c
}

func LargeNumberField(key Key) FieldConfig {
	return FieldConfig{Label: CamelCaseToLabel(string(key)), Kind: KindLargeNumber, Validate: ValidateLargeNumber, Parse: ParseLargeNumber}
}

func IntegerField(key Key) FieldConfig {
	return FieldConfig{Label: CamelCaseToLabel(string(key)), Kind: KindInteger, Validate: ValidateInteger, Parse: ParseInteger}
}

// IntegerPlusField is used for tier, where tournaments print "14+".
func IntegerPlusField(key Key) FieldConfig {
	return FieldConfig{Label: CamelCaseToLabel(string(key)), Kind: KindIntegerPlus, Validate: ValidateIntegerPlus, Parse: ParseIntegerPlus}
}

func TimespanField(key Key) FieldConfig {
	return FieldConfig{Label: CamelCaseToLabel(string(key)), Kind: KindTimespan, Validate: ValidateTimespan, Parse: ParseTimespan}
}

func MultiplierField(key Key) FieldConfig {
	return FieldConfig{Label: CamelCaseToLabel(string(key)), Kind: KindMultiplier, Validate: ValidateMultiplier, Parse: ParseMultiplier}
}

// TextField is for values such as "Killed By" that are kept as text only.
func TextField(key Key) FieldConfig {
	return FieldConfig{Label: CamelCaseToLabel(string(key)), Kind: KindText, Validate: ValidateText, Parse: ParseText}
}

// KeyDef is one declared field of a section.
type KeyDef struct {
	Key    Key
	Config FieldConfig
}

// SectionDef declares a section and its fields in display order.
type SectionDef struct {
	Name Section
	Keys []KeyDef
}

// Location is where a label resolves to in the schema.
type Location struct {
	Section Section
	Key     Key
}

// Registry is the immutable field schema plus the label index derived from it.
// It is safe for concurrent use.
type Registry struct {
	sections   []Section
	keys       map[Section][]Key
	configs    map[Key]FieldConfig
	keySection map[Key]Section
	labels     map[string]Location
	sorted     []string
}

// NewRegistry builds a registry from section definitions. A key declared in
// more than one section, or two keys sharing a label, is a SchemaError.
func NewRegistry(defs ...SectionDef) (*Registry, error) {
	r := &Registry{
		keys:       make(map[Section][]Key, len(defs)),
		configs:    make(map[Key]FieldConfig),
		keySection: make(map[Key]Section),
	}
	for _, def := range defs {
		if _, dup := r.keys[def.Name]; dup {
			return nil, &SchemaError{Section: def.Name, Err: ErrDuplicateKey}
		}
		r.sections = append(r.sections, def.Name)
		ks := make([]Key, 0, len(def.Keys))
		for _, kd := range def.Keys {
			if owner, dup := r.keySection[kd.Key]; dup {
				return nil, &SchemaError{Section: def.Name, Key: kd.Key, Err: fmt.Errorf("%w (already in %s)", ErrDuplicateKey, owner)}
			}
			r.keySection[kd.Key] = def.Name
			r.configs[kd.Key] = kd.Config
			ks = append(ks, kd.Key)
		}
		r.keys[def.Name] = ks
	}
	if err := r.buildLabelIndex(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on a schema defect.
func MustNewRegistry(defs ...SectionDef) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Sections returns the section names in declaration order.
func (r *Registry) Sections() []Section {
	out := make([]Section, len(r.sections))
	copy(out, r.sections)
	return out
}

// Keys returns the keys of section in declaration order.
func (r *Registry) Keys(section Section) ([]Key, error) {
	ks, ok := r.keys[section]
	if !ok {
		return nil, &SchemaError{Section: section, Err: ErrUnknownSection}
	}
	out := make([]Key, len(ks))
	copy(out, ks)
	return out, nil
}

// Config returns the field configuration for key within section.
func (r *Registry) Config(section Section, key Key) (FieldConfig, error) {
	if _, ok := r.keys[section]; !ok {
		return FieldConfig{}, &SchemaError{Section: section, Key: key, Err: ErrUnknownSection}
	}
	if r.keySection[key] != section {
		return FieldConfig{}, &SchemaError{Section: section, Key: key, Err: ErrUnknownKey}
	}
	return r.configs[key], nil
}

// SectionOf returns the section that declares key.
func (r *Registry) SectionOf(key Key) (Section, bool) {
	s, ok := r.keySection[key]
	return s, ok
}

// each calls fn for every field in declaration order and stops when fn returns false.
func (r *Registry) each(fn func(Section, Key, FieldConfig) bool) {
	for _, s := range r.sections {
		for _, k := range r.keys[s] {
			if !fn(s, k, r.configs[k]) {
				return
			}
		}
	}
}
