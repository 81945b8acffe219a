package template

import (
	"errors"
	"fmt"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// parser is a recursive-descent parser over the @-expression grammar:
//
//	expr       := "@param" path | "@config" path
//	            | "@tool" "(" string ("," argsObj)? ")"
//	            | "@resource" "(" value ")" | "@resource" "." ident
//	            | "@prompt" "(" string ("," argsObj)? ")"
//	path       := ("." ident)*
//	argsObj    := "{" (key ":" value ("," key ":" value)*)? "}"
//	key        := string | ident
//	value      := string | number | bool | expr
type parser struct {
	toks []token
	pos  int
}

// Parse lexes and parses one @-expression, returning its root Expr.
func Parse(src string) (Expr, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vmcp.ErrTemplateSyntax, err)
	}
	p := &parser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		if errors.Is(err, vmcp.ErrTemplateUnknownTarget) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", vmcp.ErrTemplateSyntax, err)
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected trailing input at offset %d", vmcp.ErrTemplateSyntax, p.peek().pos)
	}
	return expr, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if p.peek().kind != k {
		return token{}, fmt.Errorf("expected %s at offset %d", what, p.peek().pos)
	}
	return p.next(), nil
}

func (p *parser) parseExpr() (Expr, error) {
	if _, err := p.expect(tokAt, "'@'"); err != nil {
		return nil, err
	}
	kw, err := p.expect(tokIdent, "identifier after '@'")
	if err != nil {
		return nil, err
	}

	switch kw.text {
	case "param":
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return ParamRef{Path: path}, nil

	case "config":
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return ConfigRef{Path: path}, nil

	case "tool":
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		name, err := p.expect(tokString, "quoted tool name")
		if err != nil {
			return nil, err
		}
		args, err := p.parseOptionalArgs()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return ToolRef{Name: name.text, Args: args}, nil

	case "resource":
		if p.peek().kind == tokDot {
			p.next()
			alias, err := p.expect(tokIdent, "resource alias")
			if err != nil {
				return nil, err
			}
			return ResourceAliasRef{Alias: alias.text}, nil
		}
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return ResourceRef{URI: val}, nil

	case "prompt":
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		name, err := p.expect(tokString, "quoted prompt name")
		if err != nil {
			return nil, err
		}
		args, err := p.parseOptionalArgs()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return PromptRef{Name: name.text, Args: args}, nil

	default:
		return nil, fmt.Errorf("%w: %s", vmcp.ErrTemplateUnknownTarget, kw.text)
	}
}

func (p *parser) parsePath() ([]string, error) {
	var path []string
	for p.peek().kind == tokDot {
		p.next()
		id, err := p.expect(tokIdent, "path segment")
		if err != nil {
			return nil, err
		}
		path = append(path, id.text)
	}
	return path, nil
}

// parseOptionalArgs parses ", { ... }" when present, returning nil args
// when the expression has no argument object at all.
func (p *parser) parseOptionalArgs() (map[string]Expr, error) {
	if p.peek().kind != tokComma {
		return nil, nil
	}
	p.next()
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	args := make(map[string]Expr)
	for p.peek().kind != tokRBrace {
		key, err := p.parseArgKey()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokColon, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		args[key] = val
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return args, nil
}

// parseArgKey accepts a quoted string key (the JSON-object form the spec
// documents: {"q": value}) or a bare identifier, for args written without
// quoting their keys.
func (p *parser) parseArgKey() (string, error) {
	switch p.peek().kind {
	case tokString:
		return p.next().text, nil
	case tokIdent:
		return p.next().text, nil
	default:
		return "", fmt.Errorf("expected argument name at offset %d", p.peek().pos)
	}
}

func (p *parser) parseValue() (Expr, error) {
	switch p.peek().kind {
	case tokString:
		return Literal{Value: p.next().text}, nil
	case tokNumber:
		return Literal{Value: p.next().num}, nil
	case tokBool:
		return Literal{Value: p.next().bval}, nil
	case tokAt:
		return p.parseExpr()
	default:
		return nil, fmt.Errorf("expected value at offset %d", p.peek().pos)
	}
}
