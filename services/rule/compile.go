package rule

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Variables exposed to rule conditions.
const (
	varCaseID        = "case_id"
	varTrigger       = "trigger"
	varProofEventID  = "proof_event_id"
	varRecipientType = "recipient_type"
	varMetadata      = "metadata"
)

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(varCaseID, cel.StringType),
		cel.Variable(varTrigger, cel.StringType),
		cel.Variable(varProofEventID, cel.StringType),
		cel.Variable(varRecipientType, cel.StringType),
		cel.Variable(varMetadata, cel.MapType(cel.StringType, cel.DynType)),
	)
}

// compile type-checks expression and plans it. Expressions must produce a bool
// (or dyn, checked again at evaluation time).
func compile(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile condition: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition must return a boolean, got %s", out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return program, nil
}

func run(program cel.Program, vars map[string]any) (bool, error) {
	val, _, err := program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	matched, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition must return a boolean, got %T", val.Value())
	}
	return matched, nil
}
