// Package filter implements the filter DSL: a
// recursive-descent parser producing a typed AST, and an evaluator that
// resolves it against the facet databases and the geo index.
package filter

// Value is a parsed filter literal: either a number or a string, never
// both (IsNumber discriminates which field is meaningful).
type Value struct {
	Str      string
	Num      float64
	IsNumber bool
}

// Op is a comparison operator.
type Op string

const (
	OpEQ Op = "="
	OpNE Op = "!="
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
)

// Expr is one node of the filter AST.
type Expr interface{ exprNode() }

// And / Or / Not are the boolean combinators. Not is parsed as a unary
// prefix binding tighter than And/Or, so `NOT field IN [...]` negates
// just the IN clause.
type And struct{ Left, Right Expr }
type Or struct{ Left, Right Expr }
type Not struct{ Inner Expr }

// Compare is `field OP value`.
type Compare struct {
	Field string
	Op    Op
	Value Value
}

// Range is `field lo TO hi`, inclusive on both ends.
type Range struct {
	Field    string
	Low, High Value
}

// In is `field [NOT] IN [v1, v2, ...]`.
type In struct {
	Field  string
	Values []Value
	Negate bool
}

// Exists is `field [NOT] EXISTS`.
type Exists struct {
	Field  string
	Negate bool
}

// GeoRadius is `_geoRadius(lat, lng, meters)`.
type GeoRadius struct {
	Lat, Lng, Meters float64
}

func (*And) exprNode()       {}
func (*Or) exprNode()        {}
func (*Not) exprNode()       {}
func (*Compare) exprNode()   {}
func (*Range) exprNode()     {}
func (*In) exprNode()        {}
func (*Exists) exprNode()    {}
func (*GeoRadius) exprNode() {}
