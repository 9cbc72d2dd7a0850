package boolean

import (
	"fmt"
)

// Query is a parsed and normalized boolean query.
type Query struct {
	Raw     string
	Root    Node
	Program []Op
}

// Parse validates query and returns it in normalized form.
func Parse(query string) (*Query, error) {
	tokens := lex(query)
	if err := validate(tokens); err != nil {
		return nil, err
	}
	root, err := build(shunt(tokens))
	if err != nil {
		return nil, err
	}
	root = Normalize(root)
	return &Query{Raw: query, Root: root, Program: Postfix(root)}, nil
}

func precedence(k tokenKind) int {
	switch k {
	case tokNot:
		return 3
	case tokAnd:
		return 2
	case tokOr:
		return 1
	}
	return 0
}

// shunt converts validated infix tokens to postfix. Closing parentheses are
// kept in the output as group markers.
func shunt(tokens []token) []token {
	out := make([]token, 0, len(tokens))
	var ops []token
	for _, t := range tokens {
		switch t.kind {
		case tokTerm:
			out = append(out, t)
		case tokNot, tokLParen:
			ops = append(ops, t)
		case tokAnd, tokOr:
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.kind == tokLParen || precedence(top.kind) < precedence(t.kind) {
					break
				}
				out = append(out, top)
				ops = ops[:len(ops)-1]
			}
			ops = append(ops, t)
		case tokRParen:
			for ops[len(ops)-1].kind != tokLParen {
				out = append(out, ops[len(ops)-1])
				ops = ops[:len(ops)-1]
			}
			ops = ops[:len(ops)-1]
			out = append(out, t)
			// a NOT waiting on the group applies to it now
			for len(ops) > 0 && ops[len(ops)-1].kind == tokNot {
				out = append(out, ops[len(ops)-1])
				ops = ops[:len(ops)-1]
			}
			continue
		}
		if t.kind == tokTerm {
			for len(ops) > 0 && ops[len(ops)-1].kind == tokNot {
				out = append(out, ops[len(ops)-1])
				ops = ops[:len(ops)-1]
			}
		}
	}
	for len(ops) > 0 {
		out = append(out, ops[len(ops)-1])
		ops = ops[:len(ops)-1]
	}
	return out
}

// build assembles the AST from postfix tokens.
func build(postfix []token) (Node, error) {
	var stack []Node
	pop := func() (Node, error) {
		if len(stack) == 0 {
			return nil, fmt.Errorf("operand stack underflow")
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return n, nil
	}
	for _, t := range postfix {
		switch t.kind {
		case tokTerm:
			stack = append(stack, &Term{Word: t.text})
		case tokRParen:
			x, err := pop()
			if err != nil {
				return nil, err
			}
			stack = append(stack, &Group{X: x})
		case tokNot:
			x, err := pop()
			if err != nil {
				return nil, err
			}
			stack = append(stack, &Not{X: x})
		case tokAnd, tokOr:
			r, err := pop()
			if err != nil {
				return nil, err
			}
			l, err := pop()
			if err != nil {
				return nil, err
			}
			if t.kind == tokAnd {
				stack = append(stack, &And{L: l, R: r})
			} else {
				stack = append(stack, &Or{L: l, R: r})
			}
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("malformed expression: %d operands left", len(stack))
	}
	return stack[0], nil
}
