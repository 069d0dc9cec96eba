package stub

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/imposterd/pkg/imposter"
)

// injectEnv is the compile-time shape of the injection environment.
func injectEnv(request map[string]any) map[string]any {
	if request == nil {
		request = map[string]any{}
	}
	return map[string]any{"request": request}
}

func compilePredicateInjection(src string) (*vm.Program, error) {
	program, err := expr.Compile(src, expr.Env(injectEnv(nil)), expr.AsBool())
	if err != nil {
		return nil, imposter.Configurationf("inject predicate %q: %v", src, err)
	}
	return program, nil
}

func compileResponseInjection(src string) (*vm.Program, error) {
	program, err := expr.Compile(src, expr.Env(injectEnv(nil)))
	if err != nil {
		return nil, imposter.Configurationf("inject response %q: %v", src, err)
	}
	return program, nil
}

func runPredicateInjection(program *vm.Program, request map[string]any) (bool, error) {
	out, err := expr.Run(program, injectEnv(request))
	if err != nil {
		return false, fmt.Errorf("inject predicate: %w", err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

func runResponseInjection(program *vm.Program, request map[string]any) (map[string]any, error) {
	out, err := expr.Run(program, injectEnv(request))
	if err != nil {
		return nil, fmt.Errorf("inject response: %w", err)
	}
	fields, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("inject response must produce an object, got %T", out)
	}
	return fields, nil
}
