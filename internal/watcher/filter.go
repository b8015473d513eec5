package watcher

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
)

// FilterEnv is the environment a filter condition is evaluated against.
//
// Example conditions:
//
//	kind == "modified"
//	rel startsWith "notes/" && kind != "removed"
type FilterEnv struct {
	Path string `expr:"path"`
	Rel  string `expr:"rel"`
	Kind string `expr:"kind"`
}

// Filter is a compiled boolean condition over events.
type Filter struct {
	condition string
	program   *vm.Program
}

func CompileFilter(condition string) (*Filter, error) {
	program, err := expr.Compile(
		condition,
		expr.Env(FilterEnv{}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile filter program")
	}
	return &Filter{condition: condition, program: program}, nil
}

func (f *Filter) String() string {
	return f.condition
}

func (f *Filter) Evaluate(e Event) (bool, error) {
	env := FilterEnv{Path: e.Path, Rel: e.Rel, Kind: string(e.Type)}
	result, err := expr.Run(f.program, env)
	if err != nil {
		return false, errors.Wrap(err, "failed to run filter program")
	}
	return result.(bool), nil
}

// WithFilter drops events for which condition evaluates to false. An empty
// condition keeps every event.
func WithFilter(condition string) Option {
	return func(w *Watcher) error {
		if condition == "" {
			w.filter = nil
			return nil
		}
		f, err := CompileFilter(condition)
		if err != nil {
			return err
		}
		w.filter = f
		return nil
	}
}
