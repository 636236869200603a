package ir

import "strings"

// ProjKind identifies the kind of a path projection.
type ProjKind int

const (
	// ProjField projects a named struct field out of the base.
	ProjField ProjKind = iota
	// ProjIndex projects an element out of an array. The index is kept as
	// the syntactic index expression; two index projections are equal when
	// their expressions are textually equal.
	ProjIndex
)

// Proj is a single projection applied to an access-path base: either a
// named field or a symbolic array index.
type Proj struct {
	Kind ProjKind
	Name string // field name for ProjField, index expression for ProjIndex
}

// Field returns a named-field projection.
func Field(name string) Proj {
	return Proj{Kind: ProjField, Name: name}
}

// Index returns an array-index projection for the given index expression.
func Index(expr string) Proj {
	return Proj{Kind: ProjIndex, Name: expr}
}

// Path denotes a memory location symbolically: a base name followed by an
// ordered list of projections. A path with no projections is a variable.
// Whether the base names a global or a procedure parameter is decided by
// the surrounding procedure's scope, not by the path itself.
type Path struct {
	Base  string
	Projs []Proj
}

// Variable returns a path with no projections.
func Variable(base string) Path {
	return Path{Base: base}
}

// IsVariable reports whether p has no projections.
func (p Path) IsVariable() bool {
	return len(p.Projs) == 0
}

// HasField reports whether any projection of p is a named field. Paths with
// a field projection denote struct-field data and are classified separately
// from globals and array elements.
func (p Path) HasField() bool {
	for _, pr := range p.Projs {
		if pr.Kind == ProjField {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of p.
func (p Path) Clone() Path {
	projs := make([]Proj, len(p.Projs))
	copy(projs, p.Projs)
	return Path{Base: p.Base, Projs: projs}
}

// Equal reports whether p and q denote the same path.
func (p Path) Equal(q Path) bool {
	if p.Base != q.Base || len(p.Projs) != len(q.Projs) {
		return false
	}
	for i, pr := range p.Projs {
		if pr != q.Projs[i] {
			return false
		}
	}
	return true
}

// Push returns p extended with one more projection.
func (p Path) Push(pr Proj) Path {
	q := p.Clone()
	q.Projs = append(q.Projs, pr)
	return q
}

// Pop splits off the last projection. The second result is the removed
// projection; ok is false when p is a variable.
func (p Path) Pop() (Path, Proj, bool) {
	if len(p.Projs) == 0 {
		return p, Proj{}, false
	}
	q := p.Clone()
	last := q.Projs[len(q.Projs)-1]
	q.Projs = q.Projs[:len(q.Projs)-1]
	return q, last, true
}

// Append returns p extended with the given projections.
func (p Path) Append(suffix ...Proj) Path {
	q := p.Clone()
	q.Projs = append(q.Projs, suffix...)
	return q
}

// HasPrefix reports whether q's base and projections are a prefix of p.
func (p Path) HasPrefix(q Path) bool {
	if p.Base != q.Base || len(q.Projs) > len(p.Projs) {
		return false
	}
	for i, pr := range q.Projs {
		if pr != p.Projs[i] {
			return false
		}
	}
	return true
}

// StripPrefix removes prefix from the front of p and returns the remaining
// projections: appending them to prefix reconstructs p. ok is false when
// prefix is not actually a prefix of p.
func (p Path) StripPrefix(prefix Path) ([]Proj, bool) {
	if !p.HasPrefix(prefix) {
		return nil, false
	}
	suffix := make([]Proj, len(p.Projs)-len(prefix.Projs))
	copy(suffix, p.Projs[len(prefix.Projs):])
	return suffix, true
}

// SuffixPath reinterprets a non-empty projection suffix as a path in its
// own right: the leading field projection becomes the base. ok is false
// when the suffix is empty or starts with an index projection, neither of
// which can stand alone as a path.
func SuffixPath(suffix []Proj) (Path, bool) {
	if len(suffix) == 0 || suffix[0].Kind != ProjField {
		return Path{}, false
	}
	rest := make([]Proj, len(suffix)-1)
	copy(rest, suffix[1:])
	return Path{Base: suffix[0].Name, Projs: rest}, true
}

// String renders p in C-like notation: base.field[index].
func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString(p.Base)
	for _, pr := range p.Projs {
		switch pr.Kind {
		case ProjField:
			sb.WriteByte('.')
			sb.WriteString(pr.Name)
		case ProjIndex:
			sb.WriteByte('[')
			sb.WriteString(pr.Name)
			sb.WriteByte(']')
		}
	}
	return sb.String()
}
