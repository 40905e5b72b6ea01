package runs

import (
	"fmt"
	"sort"
)

func (r *Registry) buildLabelIndex() error {
	r.labels = make(map[string]Location, len(r.configs))
	r.sorted = make([]string, 0, len(r.configs))
	var err error
	r.each(func(s Section, k Key, cfg FieldConfig) bool {
		if prev, dup := r.labels[cfg.Label]; dup {
			err = &SchemaError{Section: s, Key: k, Err: fmt.Errorf("%w %q (already used by %s.%s)", ErrDuplicateLabel, cfg.Label, prev.Section, prev.Key)}
			return false
		}
		r.labels[cfg.Label] = Location{Section: s, Key: k}
		r.sorted = append(r.sorted, cfg.Label)
		return true
	})
	if err != nil {
		return err
	}
	// Longest first so "Damage Taken Wall" is tried before "Damage Taken".
	sort.SliceStable(r.sorted, func(i, j int) bool {
		return len(r.sorted[i]) > len(r.sorted[j])
	})
	return nil
}

// Lookup resolves a label to its schema location.
func (r *Registry) Lookup(label string) (Location, bool) {
	loc, ok := r.labels[label]
	return loc, ok
}

// SortedLabels returns every label ordered by descending length, ties in
// declaration order.
func (r *Registry) SortedLabels() []string {
	out := make([]string, len(r.sorted))
	copy(out, r.sorted)
	return out
}
