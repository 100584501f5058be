package sqlkit

// Literal is SQL emitted verbatim, bypassing escaping and identifier
// resolution.
type Literal struct {
	Value string
}

// Raw returns a Literal holding s.
func Raw(s string) Literal {
	return Literal{Value: s}
}

// String returns the raw SQL.
func (l Literal) String() string {
	return l.Value
}
