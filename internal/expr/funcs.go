package expr

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/pipegrid/internal/run"
)

// functions builds the status predicate and string helper functions for an
// environment. The status predicates close over the unit's direct
// dependency results.
func (env *Env) functions() map[string]function.Function {
	deps := env.DepResults
	return map[string]function.Function{
		// success() is true when every direct dependency succeeded. It is
		// vacuously true for a unit with no dependencies.
		"success": nullaryBool(func() bool {
			for _, r := range deps {
				if r != run.ResultSuccess {
					return false
				}
			}
			return true
		}),
		// failure() is true when at least one direct dependency failed.
		"failure": nullaryBool(func() bool {
			for _, r := range deps {
				if r == run.ResultFailure {
					return true
				}
			}
			return false
		}),
		// cancelled() is true when at least one direct dependency was
		// cancelled.
		"cancelled": nullaryBool(func() bool {
			for _, r := range deps {
				if r == run.ResultCancelled {
					return true
				}
			}
			return false
		}),
		// always() makes a unit run regardless of upstream outcomes.
		"always": nullaryBool(func() bool { return true }),

		"contains":   stringPredicate(strings.Contains),
		"startswith": stringPredicate(strings.HasPrefix),
		"endswith":   stringPredicate(strings.HasSuffix),
	}
}

// nullaryBool wraps a Go predicate as a no-argument cty function.
func nullaryBool(fn func() bool) function.Function {
	return function.New(&function.Spec{
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.BoolVal(fn()), nil
		},
	})
}

// stringPredicate wraps a two-string Go predicate as a cty function. Null
// arguments make the predicate false rather than failing evaluation.
func stringPredicate(fn func(s, sub string) bool) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "s", Type: cty.String, AllowNull: true},
			{Name: "substr", Type: cty.String, AllowNull: true},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if args[0].IsNull() || args[1].IsNull() {
				return cty.False, nil
			}
			return cty.BoolVal(fn(args[0].AsString(), args[1].AsString())), nil
		},
	})
}
