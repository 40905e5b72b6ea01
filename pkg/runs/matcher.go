package runs

import "strings"

// Assignment records one OCR line that was matched to a field.
type Assignment struct {
	Line     int
	Label    string
	Location Location
	Text     string
}

// Match assigns OCR lines to fields. For every line the longest label L such
// that the line starts with L+" " wins, and the remainder of the line becomes
// the field's text. Lines that match no label are ignored. When several lines
// match the same field the last one wins.
func (r *Registry) Match(fv FieldValues, text string) (FieldValues, []Assignment) {
	out := fv.clone()
	var assigned []Assignment
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		label, ok := r.matchLabel(line)
		if !ok {
			continue
		}
		loc := r.labels[label]
		value := line[len(label)+1:]
		if out[loc.Section] == nil {
			out[loc.Section] = make(map[Key]string)
		}
		out[loc.Section][loc.Key] = value
		assigned = append(assigned, Assignment{Line: i, Label: label, Location: loc, Text: value})
	}
	return out, assigned
}

// MatchAll applies Match to each text in order, so later texts overwrite
// earlier ones field by field.
func (r *Registry) MatchAll(fv FieldValues, texts ...string) (FieldValues, []Assignment) {
	var all []Assignment
	for _, t := range texts {
		var a []Assignment
		fv, a = r.Match(fv, t)
		all = append(all, a...)
	}
	return fv, all
}

func (r *Registry) matchLabel(line string) (string, bool) {
	for _, label := range r.sorted {
		if len(line) > len(label) && line[len(label)] == ' ' && strings.HasPrefix(line, label) {
			return label, true
		}
	}
	return "", false
}
