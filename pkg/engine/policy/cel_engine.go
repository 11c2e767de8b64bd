// Package policy evaluates the CEL conditions that decide whether a
// builder or artifact cell is shown for a build.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Input is the data a condition can reference.
type Input struct {
	ID       string
	Date     string
	Files    []string
	Fields   map[string]string
	Builders map[string]string
}

func (in Input) vars() map[string]any {
	files := in.Files
	if files == nil {
		files = []string{}
	}
	fields := in.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	builders := in.Builders
	if builders == nil {
		builders = map[string]string{}
	}
	return map[string]any{
		"id":       in.ID,
		"date":     in.Date,
		"files":    files,
		"fields":   fields,
		"builders": builders,
	}
}

// CELEngine compiles and caches boolean conditions.
type CELEngine struct {
	env      *cel.Env
	programs map[string]cel.Program
}

// NewCELEngine initializes the CEL environment with the row variables.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("date", cel.StringType),
		cel.Variable("files", cel.ListType(cel.StringType)),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("builders", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	return &CELEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile checks an expression and caches its program. The empty
// expression is always true.
func (e *CELEngine) Compile(expr string) error {
	if expr == "" {
		return nil
	}
	if _, ok := e.programs[expr]; ok {
		return nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("condition %q compilation error: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return fmt.Errorf("condition %q must be boolean, got %s", expr, ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return fmt.Errorf("condition %q program creation error: %w", expr, err)
	}
	e.programs[expr] = prg
	return nil
}

// Eval reports whether expr holds for the input.
func (e *CELEngine) Eval(expr string, in Input) (bool, error) {
	if expr == "" {
		return true, nil
	}
	if err := e.Compile(expr); err != nil {
		return false, err
	}

	out, _, err := e.programs[expr].Eval(in.vars())
	if err != nil {
		return false, fmt.Errorf("condition %q evaluation failed: %w", expr, err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T", expr, out.Value())
	}
	return match, nil
}
