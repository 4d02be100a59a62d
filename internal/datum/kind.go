package datum

import "fmt"

// Kind identifies which variant a Value holds.
//
// The integer codes are persisted (sqlite FieldTypes, arrow field metadata)
// and must never be renumbered.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindReal
	KindText
	KindBlob
	KindRunID
)

var kindNames = map[Kind]string{
	KindInt:   "int",
	KindReal:  "real",
	KindText:  "text",
	KindBlob:  "blob",
	KindRunID: "runid",
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the five value kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown value kind %q", s)
}

// KindOf returns the kind of v, or KindInvalid for nil.
func KindOf(v Value) Kind {
	if v == nil {
		return KindInvalid
	}
	return v.Kind()
}
