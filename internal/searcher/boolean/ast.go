package boolean

import "fmt"

// Node is a query AST node: *Term, *Not, *And, *Or or *Group.
type Node interface {
	fmt.Stringer
	node()
}

type Term struct{ Word string }

type Not struct{ X Node }

type And struct{ L, R Node }

type Or struct{ L, R Node }

// Group is a parenthesized sub-expression. It only exists between parsing
// and normalization.
type Group struct{ X Node }

func (*Term) node()  {}
func (*Not) node()   {}
func (*And) node()   {}
func (*Or) node()    {}
func (*Group) node() {}

func (n *Term) String() string  { return n.Word }
func (n *Not) String() string   { return "NOT " + n.X.String() }
func (n *And) String() string   { return "(" + n.L.String() + " AND " + n.R.String() + ")" }
func (n *Or) String() string    { return "(" + n.L.String() + " OR " + n.R.String() + ")" }
func (n *Group) String() string { return "[" + n.X.String() + "]" }

// Normalize unwraps groups and pushes every NOT down to a term using De
// Morgan's laws. Double negations cancel.
func Normalize(n Node) Node {
	switch n := n.(type) {
	case *Group:
		return Normalize(n.X)
	case *And:
		return &And{L: Normalize(n.L), R: Normalize(n.R)}
	case *Or:
		return &Or{L: Normalize(n.L), R: Normalize(n.R)}
	case *Not:
		return negate(n.X)
	default:
		return n
	}
}

func negate(n Node) Node {
	switch n := n.(type) {
	case *Group:
		return negate(n.X)
	case *Not:
		return Normalize(n.X)
	case *And:
		return &Or{L: negate(n.L), R: negate(n.R)}
	case *Or:
		return &And{L: negate(n.L), R: negate(n.R)}
	default:
		return &Not{X: n}
	}
}

// OpKind is the kind of a postfix instruction.
type OpKind int

const (
	OpTerm OpKind = iota
	OpNot
	OpAnd
	OpOr
)

// Op is one instruction of a postfix program.
type Op struct {
	Kind OpKind
	Term string
}

func (o Op) String() string {
	switch o.Kind {
	case OpNot:
		return "NOT"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return o.Term
	}
}

// Postfix flattens an AST into evaluation order.
func Postfix(n Node) []Op {
	var ops []Op
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *Term:
			ops = append(ops, Op{Kind: OpTerm, Term: n.Word})
		case *Not:
			walk(n.X)
			ops = append(ops, Op{Kind: OpNot})
		case *And:
			walk(n.L)
			walk(n.R)
			ops = append(ops, Op{Kind: OpAnd})
		case *Or:
			walk(n.L)
			walk(n.R)
			ops = append(ops, Op{Kind: OpOr})
		case *Group:
			walk(n.X)
		}
	}
	walk(n)
	return ops
}
