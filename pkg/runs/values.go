package runs

import (
	"encoding/json"
	"math"
)

// FieldValues holds the raw text of every field, section -> key -> text.
// Records are treated as values: Set returns a new record and never mutates
// the receiver.
type FieldValues map[Section]map[Key]string

// Defaults returns a record with every key of the schema set to "".
func (r *Registry) Defaults() FieldValues {
	fv := make(FieldValues, len(r.sections))
	for _, s := range r.sections {
		m := make(map[Key]string, len(r.keys[s]))
		for _, k := range r.keys[s] {
			m[k] = ""
		}
		fv[s] = m
	}
	return fv
}

// FromParsed pre-populates a record with the stored text of an existing run,
// for editing. Keys missing from p stay blank; keys unknown to the schema are dropped.
func (r *Registry) FromParsed(p ParsedValues) FieldValues {
	fv := r.Defaults()
	for s, sec := range p {
		dst, ok := fv[s]
		if !ok {
			continue
		}
		for k, text := range sec.Text {
			if _, known := dst[k]; known {
				dst[k] = text
			}
		}
	}
	return fv
}

// Get returns the text of section/key, or "" when unset.
func (fv FieldValues) Get(section Section, key Key) string {
	return fv[section][key]
}

// Set returns a copy of fv with section/key set to text. The key must belong
// to section in r.
func (r *Registry) Set(fv FieldValues, section Section, key Key, text string) (FieldValues, error) {
	if _, err := r.Config(section, key); err != nil {
		return fv, err
	}
	out := fv.clone()
	if out[section] == nil {
		out[section] = make(map[Key]string)
	}
	out[section][key] = text
	return out, nil
}

func (fv FieldValues) clone() FieldValues {
	out := make(FieldValues, len(fv))
	for s, m := range fv {
		cp := make(map[Key]string, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[s] = cp
	}
	return out
}

// Validate checks every field in schema order and returns a *ValidationError
// for the first one that is empty or rejected by its validator.
func (r *Registry) Validate(fv FieldValues) error {
	var verr *ValidationError
	r.each(func(s Section, k Key, cfg FieldConfig) bool {
		text := fv[s][k]
		switch {
		case text == "":
			verr = &ValidationError{Section: s, Key: k, Label: cfg.Label, Reason: ReasonBlank}
		case !cfg.Validate(text):
			verr = &ValidationError{Section: s, Key: k, Label: cfg.Label, Reason: ReasonInvalid}
		}
		return verr == nil
	})
	if verr != nil {
		return verr
	}
	return nil
}

// ParsedSection pairs the original text of a section with its parsed values.
// Text fields parse to NaN, which is encoded as JSON null.
type ParsedSection struct {
	Text   map[Key]string
	Values map[Key]float64
}

// ParsedValues is the parsed form of FieldValues, keyed by section.
type ParsedValues map[Section]ParsedSection

// Parse applies every field's parser. It assumes Validate succeeded; invalid
// text yields NaN values.
func (r *Registry) Parse(fv FieldValues) ParsedValues {
	out := make(ParsedValues, len(r.sections))
	for _, s := range r.sections {
		ps := ParsedSection{
			Text:   make(map[Key]string, len(r.keys[s])),
			Values: make(map[Key]float64, len(r.keys[s])),
		}
		for _, k := range r.keys[s] {
			text := fv[s][k]
			ps.Text[k] = text
			ps.Values[k] = r.configs[k].Parse(text)
		}
		out[s] = ps
	}
	return out
}

// Value returns the parsed value of key, NaN when absent.
func (p ParsedValues) Value(section Section, key Key) float64 {
	v, ok := p[section].Values[key]
	if !ok {
		return math.NaN()
	}
	return v
}

// Text returns the original text of key.
func (p ParsedValues) Text(section Section, key Key) string {
	return p[section].Text[key]
}

type parsedSectionJSON struct {
	Text   map[Key]string   `json:"text"`
	Values map[Key]*float64 `json:"values"`
}

func (ps ParsedSection) MarshalJSON() ([]byte, error) {
	out := parsedSectionJSON{Text: ps.Text, Values: make(map[Key]*float64, len(ps.Values))}
	for k, v := range ps.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out.Values[k] = nil
			continue
		}
		v := v
		out.Values[k] = &v
	}
	return json.Marshal(out)
}

func (ps *ParsedSection) UnmarshalJSON(data []byte) error {
	var in parsedSectionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	ps.Text = in.Text
	if ps.Text == nil {
		ps.Text = map[Key]string{}
	}
	ps.Values = make(map[Key]float64, len(in.Values))
	for k, v := range in.Values {
		if v == nil {
			ps.Values[k] = math.NaN()
			continue
		}
		ps.Values[k] = *v
	}
	return nil
}
