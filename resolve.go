package xltpl

import (
	"reflect"
	"regexp"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// pathRe accepts dotted data paths with optional index steps: a.b, rows[0].name.
var pathRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\])*$`)

// exprLiterals are identifiers expr treats as literals rather than variables.
var exprLiterals = map[string]bool{"true": true, "false": true, "nil": true}

// resolver looks up dotted paths in caller data. Paths are compiled once
// with expr and cached; anything that does not resolve is KindMissing.
type resolver struct {
	cache sync.Map // path → *vm.Program
}

func newResolver() *resolver {
	return &resolver{}
}

// Lookup resolves path against data. A key equal to the whole path wins
// over a dotted lookup, so top-level names containing dots or spaces work.
func (r *resolver) Lookup(data map[string]any, path string) Value {
	if v, ok := data[path]; ok {
		return ValueOf(v)
	}
	return r.eval(data, path)
}

// Field resolves key relative to a sequence element.
func (r *resolver) Field(elem Value, key string) Value {
	if key == "" {
		return elem
	}
	if elem.Kind() != KindMapping {
		return Value{}
	}
	if elem.rv.Kind() == reflect.Map && elem.rv.Type().Key().Kind() == reflect.String {
		mv := elem.rv.MapIndex(reflect.ValueOf(key).Convert(elem.rv.Type().Key()))
		if mv.IsValid() {
			return ValueOf(mv.Interface())
		}
	}
	return r.eval(elem.raw, key)
}

func (r *resolver) eval(env any, path string) Value {
	if !ValidPath(path) {
		return Value{}
	}
	program, err := r.compile(path)
	if err != nil {
		return Value{}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return Value{}
	}
	return ValueOf(out)
}

func (r *resolver) compile(path string) (*vm.Program, error) {
	if cached, ok := r.cache.Load(path); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(path, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	r.cache.Store(path, program)
	return program, nil
}

// ValidPath reports whether path can be resolved as a dotted data path.
func ValidPath(path string) bool {
	return pathRe.MatchString(path) && !exprLiterals[path]
}
