// Package template implements the vMCP expression and text template
// engine (spec §4.4): a hand-written lexer/parser for the @-prefixed
// expression language (@param, @config, @tool, @resource, @prompt), a
// hand-written mustache-subset renderer for the surrounding text template
// ({{expr}}, {{#if}}, {{#each}}), and an evaluator that can recurse back
// into the vMCP Composer through the Invoker interface.
//
// Neither the expression grammar nor the mustache subset map onto an
// existing ecosystem library in the corpus this was grounded on, so both
// layers are hand-rolled here the way the teacher hand-rolls its own
// template_expander.go rather than importing a general template engine.
package template

// Expr is one parsed @-expression node.
type Expr interface{}

// Literal is a constant string, number, or bool used as an argument value.
type Literal struct {
	Value any
}

// ParamRef resolves a dotted path under the caller-supplied input
// arguments: @param.path.to.field
type ParamRef struct {
	Path []string
}

// ConfigRef resolves a dotted path under the vMCP's frozen environment:
// @config.path.to.field
type ConfigRef struct {
	Path []string
}

// ToolRef invokes another tool, addressed by its name within the current
// vMCP's composed surface (the same exposed, collision-resolved name an
// inbound call_tool would use), and yields its text content:
// @tool("NAME", {"arg": value, ...})
type ToolRef struct {
	Name string
	Args map[string]Expr
}

// ResourceRef reads a resource by URI and yields its bytes as text:
// @resource("uri")
type ResourceRef struct {
	URI Expr
}

// ResourceAliasRef reads a resource by its short alias (its Name rather
// than its full URI) and yields its bytes as text: @resource.alias
type ResourceAliasRef struct {
	Alias string
}

// PromptRef renders a prompt and yields its message body:
// @prompt("name", {"arg": value, ...})
type PromptRef struct {
	Name string
	Args map[string]Expr
}
