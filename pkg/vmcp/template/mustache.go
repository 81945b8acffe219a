package template

import (
	"fmt"
	"strings"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// node is one parsed unit of the outer mustache-subset template: literal
// text, an interpolated @-expression, an #if block, or an #each block.
type node interface{}

type textNode struct{ text string }

type exprNode struct{ expr Expr }

// currentNode resolves a dotted path off the innermost #each item, e.g.
// {{.}} or {{.name}}.
type currentNode struct{ path []string }

type ifNode struct {
	cond Expr
	then []node
	els  []node
}

type eachNode struct {
	list Expr
	body []node
}

// Compile parses a mustache-subset template body into a node tree. "@@"
// is the escape sequence for a literal "@" so a template can mention the
// expression sigil without triggering parsing.
func Compile(src string) ([]node, error) {
	p := &mustacheParser{src: src}
	nodes, rest, err := p.parseUntil("")
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("%w: unmatched block tag near %q", vmcp.ErrTemplateSyntax, rest)
	}
	return nodes, nil
}

type mustacheParser struct {
	src string
	pos int
}

// parseUntil parses nodes until it sees a closing tag matching `closeTag`
// (e.g. "/if", "/each"), an "else" tag at the same nesting level, or EOF
// when closeTag is "". It returns the parsed nodes and the literal closing
// tag text actually found ("" at EOF).
func (p *mustacheParser) parseUntil(closeTag string) ([]node, string, error) {
	var nodes []node
	for {
		start := p.pos
		idx := strings.Index(p.src[p.pos:], "{{")
		if idx < 0 {
			nodes = append(nodes, textNode{text: unescapeAt(p.src[start:])})
			p.pos = len(p.src)
			return nodes, "", nil
		}
		if idx > 0 {
			nodes = append(nodes, textNode{text: unescapeAt(p.src[start : start+idx])})
		}
		p.pos = start + idx + 2
		end := strings.Index(p.src[p.pos:], "}}")
		if end < 0 {
			return nil, "", fmt.Errorf("%w: unterminated {{ tag", vmcp.ErrTemplateSyntax)
		}
		tag := strings.TrimSpace(p.src[p.pos : p.pos+end])
		p.pos += end + 2

		switch {
		case tag == closeTag && closeTag != "":
			return nodes, tag, nil
		case tag == "else" && closeTag != "":
			return nodes, tag, nil
		case strings.HasPrefix(tag, "#if "):
			cond, err := Parse(strings.TrimSpace(strings.TrimPrefix(tag, "#if ")))
			if err != nil {
				return nil, "", err
			}
			then, found, err := p.parseUntil("/if")
			if err != nil {
				return nil, "", err
			}
			var els []node
			if found == "else" {
				els, _, err = p.parseUntil("/if")
				if err != nil {
					return nil, "", err
				}
			}
			nodes = append(nodes, ifNode{cond: cond, then: then, els: els})
		case strings.HasPrefix(tag, "#each "):
			rawPath := strings.TrimSpace(strings.TrimPrefix(tag, "#each "))
			listExpr, err := parseEachTarget(rawPath)
			if err != nil {
				return nil, "", err
			}
			body, _, err := p.parseUntil("/each")
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, eachNode{list: listExpr, body: body})
		case strings.HasPrefix(tag, "."):
			path := strings.Split(strings.TrimPrefix(tag, "."), ".")
			if len(path) == 1 && path[0] == "" {
				path = nil
			}
			nodes = append(nodes, currentNode{path: path})
		default:
			expr, err := Parse(tag)
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, exprNode{expr: expr})
		}
	}
}

// parseEachTarget accepts either an @param/@config expression or a bare
// dotted path into the current iteration item (".items").
func parseEachTarget(raw string) (Expr, error) {
	if strings.HasPrefix(raw, ".") {
		path := strings.Split(strings.TrimPrefix(raw, "."), ".")
		if len(path) == 1 && path[0] == "" {
			path = nil
		}
		return currentPathExpr{path: path}, nil
	}
	return Parse(raw)
}

// currentPathExpr is evaluated specially by Render when it appears as an
// #each target nested inside another #each.
type currentPathExpr struct{ path []string }

func unescapeAt(s string) string {
	return strings.ReplaceAll(s, "@@", "@")
}

// Render compiles and evaluates src against e using ic for recursive
// @tool/@resource/@prompt calls.
func Render(ic *vmcp.InvocationContext, e *Evaluator, src string) (string, error) {
	nodes, err := Compile(src)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := renderNodes(ic, e, nodes, nil, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderNodes(ic *vmcp.InvocationContext, e *Evaluator, nodes []node, current any, b *strings.Builder) error {
	for _, n := range nodes {
		if err := renderNode(ic, e, n, current, b); err != nil {
			return err
		}
	}
	return nil
}

func renderNode(ic *vmcp.InvocationContext, e *Evaluator, n node, current any, b *strings.Builder) error {
	switch v := n.(type) {
	case textNode:
		b.WriteString(v.text)

	case exprNode:
		val, err := e.Eval(ic, v.expr)
		if err != nil {
			return err
		}
		b.WriteString(stringify(val))

	case currentNode:
		val, ok := lookupAny(current, v.path)
		if !ok {
			return fmt.Errorf("%w: current item has no field %q", vmcp.ErrBadArguments, strings.Join(v.path, "."))
		}
		b.WriteString(stringify(val))

	case ifNode:
		val, err := e.Eval(ic, v.cond)
		if err != nil {
			return err
		}
		if truthy(val) {
			return renderNodes(ic, e, v.then, current, b)
		}
		return renderNodes(ic, e, v.els, current, b)

	case eachNode:
		var list any
		if cp, ok := v.list.(currentPathExpr); ok {
			val, ok := lookupAny(current, cp.path)
			if !ok {
				return fmt.Errorf("%w: each target %q not found", vmcp.ErrBadArguments, strings.Join(cp.path, "."))
			}
			list = val
		} else {
			val, err := e.Eval(ic, v.list)
			if err != nil {
				return err
			}
			list = val
		}
		items, ok := list.([]any)
		if !ok {
			return fmt.Errorf("%w: #each target is not a list", vmcp.ErrBadArguments)
		}
		for _, item := range items {
			if err := renderNodes(ic, e, v.body, item, b); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("%w: unrecognized template node %T", vmcp.ErrTemplateSyntax, n)
	}
	return nil
}

func lookupAny(root any, path []string) (any, bool) {
	cur := root
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
