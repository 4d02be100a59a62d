package datum

import (
	"slices"
	"strings"
)

// Field is one named value of a record.
type Field struct {
	Name  string
	Value Value
}

// F is a shorthand for Field construction.
// Example: F("weight", NewInt(10))
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Column is the name and kind of one schema entry.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered column list of a record title.
type Schema []Column

// SchemaOf derives the schema of a field list, preserving order.
func SchemaOf(fields []Field) Schema {
	s := make(Schema, len(fields))
	for i, f := range fields {
		s[i] = Column{Name: f.Name, Kind: KindOf(f.Value)}
	}
	return s
}

// Lookup returns the column named name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Index returns the position of the column named name, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Sorted returns a copy of s ordered lexicographically by column name.
func (s Schema) Sorted() Schema {
	out := slices.Clone(s)
	slices.SortFunc(out, func(a, b Column) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
