// Package predicate compiles the textual predicate and update-expression
// source strings that spec.md §4.4/§4.5/§9 describe into reusable,
// re-evaluable programs.
//
// spec.md treats "the expression parser and evaluator that compiles a
// textual predicate into a callable bound to row attributes" as an
// external collaborator; this package is dinsd's concrete stand-in for it,
// built on github.com/google/cel-go (grounded on the AKJUS-bsc-erigon
// example repo in this pack, which declares a direct cel-go dependency for
// evaluating boolean expressions against typed, record-like environments —
// see DESIGN.md). Predicates are compiled once from source text and kept
// alongside that source text forever, because the source string is what
// gets persisted (spec.md §9: "a predicate must round-trip through the
// store, so it is represented as a parsed AST bound to a source string").
package predicate

import (
	"fmt"
	"regexp"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/bitdancer/dinsd/rel"
)

// Program is a compiled predicate or update expression, bound to the
// header and namespace it was compiled against plus the source text it was
// compiled from.
type Program struct {
	source string
	prg    cel.Program
	ns     *rel.Namespace
}

// Source returns the verbatim text the program was compiled from. Callers
// persist this, never the compiled form.
func (p *Program) Source() string { return p.source }

// NotSerializableError is returned when a caller supplies something other
// than source text as a predicate or update expression — spec.md §4.4 step
// 1 and §7's predicate-not-serializable error kind.
type NotSerializableError struct {
	Value any
}

func (e *NotSerializableError) Error() string {
	return fmt.Sprintf("predicate-not-serializable: expected a string expression, got %T", e.Value)
}

// chainedComparison matches a whole source of the form "a op b op c" with
// two relational operators between simple operands, e.g. "0 <= mark <= 100".
var chainedComparison = regexp.MustCompile(`^\s*([^<>=!&|()\s]+)\s*(<=|<|>=|>)\s*([^<>=!&|()\s]+)\s*(<=|<|>=|>)\s*([^<>=!&|()\s]+)\s*$`)

// CompilePredicate compiles source (which must be a string — callers that
// pass anything else get NotSerializableError) into a boolean-valued
// Program whose free variables resolve against header's attribute names
// first, then against ns. A source that is exactly one chained comparison
// ("a op b op c") is compiled as "a op b && b op c"; chained comparisons
// inside a larger expression are not expanded. Source() still returns the
// text as given.
func CompilePredicate(source any, header rel.Header, ns *rel.Namespace) (*Program, error) {
	src, ok := source.(string)
	if !ok {
		return nil, &NotSerializableError{Value: source}
	}
	env, err := buildEnv(header, ns)
	if err != nil {
		return nil, err
	}
	expr := src
	if m := chainedComparison.FindStringSubmatch(src); m != nil {
		expr = fmt.Sprintf("%s %s %s && %s %s %s", m[1], m[2], m[3], m[3], m[4], m[5])
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling predicate %q: %w", src, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("planning predicate %q: %w", src, err)
	}
	return &Program{source: src, prg: prg, ns: ns}, nil
}

// CompileExpr compiles source into a Program for update()'s right-hand-side
// expressions; (*Program).EvalValue converts its result to a rel.Value of
// the attribute type it is given.
func CompileExpr(source any, header rel.Header, ns *rel.Namespace) (*Program, error) {
	return CompilePredicate(source, header, ns)
}

// Eval runs the compiled predicate against row, coercing the result to
// bool per spec.md §4.4's evaluation semantics: the row's attributes are
// bound so bare names refer to its values, the namespace is the fallback,
// and any evaluation error is reported to the caller (who — per spec.md —
// treats it as False while surfacing the cause).
func (p *Program) Eval(row rel.Row) (bool, error) {
	out, _, err := p.prg.Eval(activationFor(row, p.ns))
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", p.source, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluating %q: result %v is not boolean", p.source, out)
	}
	return b, nil
}

// EvalValue runs the compiled expression against row and converts its
// result into a rel.Value of the given attribute type, for update()'s
// right-hand sides.
func (p *Program) EvalValue(row rel.Row, want rel.Type) (rel.Value, error) {
	out, _, err := p.prg.Eval(activationFor(row, p.ns))
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", p.source, err)
	}
	return fromCEL(out, want)
}

func activationFor(row rel.Row, ns *rel.Namespace) map[string]any {
	vars := make(map[string]any, len(row))
	for name, v := range row {
		vars[name] = toCEL(v)
	}
	if ns != nil {
		consts, _ := ns.Names()
		for _, name := range consts {
			if _, shadowed := vars[name]; shadowed {
				continue
			}
			if v, ok := ns.Get(name); ok {
				vars[name] = toCEL(v)
			}
		}
	}
	return vars
}

func toCEL(v rel.Value) any {
	switch x := v.(type) {
	case rel.Int:
		return int64(x)
	case rel.String:
		return string(x)
	case rel.Bool:
		return bool(x)
	default:
		// User-defined domain values (CID, SID, ...) expose themselves to
		// expressions as their string representation.
		return v.String()
	}
}

func fromCEL(val ref.Val, want rel.Type) (rel.Value, error) {
	switch want {
	case rel.IntType:
		i, ok := val.Value().(int64)
		if !ok {
			return nil, fmt.Errorf("expected int result, got %T", val.Value())
		}
		return rel.Int(i), nil
	case rel.StringType:
		s, ok := val.Value().(string)
		if !ok {
			return nil, fmt.Errorf("expected string result, got %T", val.Value())
		}
		return rel.String(s), nil
	case rel.BoolType:
		b, ok := val.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool result, got %T", val.Value())
		}
		return rel.Bool(b), nil
	default:
		s, ok := val.Value().(string)
		if !ok {
			return nil, fmt.Errorf("expected %s result, got %T", want.Tag(), val.Value())
		}
		return rel.NewDomain(want.Tag(), s), nil
	}
}

func buildEnv(header rel.Header, ns *rel.Namespace) (*cel.Env, error) {
	var opts []cel.EnvOption
	for name, typ := range header {
		opts = append(opts, cel.Variable(name, celTypeFor(typ)))
	}

	consts, funcs := ns.Names()
	for _, name := range consts {
		if _, declared := header[name]; declared {
			continue // row attributes shadow namespace constants
		}
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	for _, name := range funcs {
		fn, _ := ns.LookupFunc(name)
		opts = append(opts, celFunction(name, fn))
	}

	return cel.NewEnv(opts...)
}

func celTypeFor(t rel.Type) *cel.Type {
	switch t {
	case rel.IntType:
		return cel.IntType
	case rel.StringType:
		return cel.StringType
	case rel.BoolType:
		return cel.BoolType
	default:
		// User-defined domain types are represented to CEL as their
		// string form; the row-side binding in toCEL follows the same rule.
		return cel.StringType
	}
}

func celFunction(name string, fn func([]rel.Value) (rel.Value, error)) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_overload", []*cel.Type{cel.StringType}, cel.DynType,
			cel.UnaryBinding(func(arg ref.Val) ref.Val {
				s, ok := arg.Value().(string)
				if !ok {
					return types.NewErr("%s: expected a string argument", name)
				}
				out, err := fn([]rel.Value{rel.String(s)})
				if err != nil {
					return types.NewErr("%s: %v", name, err)
				}
				return types.String(out.String())
			}),
		),
	)
}
