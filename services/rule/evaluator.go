package rule

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Facts are the milestone attributes a condition can inspect.
type Facts struct {
	CaseID       string
	Trigger      string
	ProofEventID string
	Metadata     map[string]any
}

// Evaluator checks and evaluates rule conditions written in CEL.
type Evaluator struct {
	env   *cel.Env
	cache *ProgramCache
}

// NewEvaluator creates an Evaluator with a shared program cache.
func NewEvaluator() (*Evaluator, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &Evaluator{env: env, cache: NewProgramCache()}, nil
}

// Check reports whether expression is a valid condition.
func (e *Evaluator) Check(expression string) error {
	_, err := e.program(expression)
	return err
}

// Match evaluates the rule's condition against facts. A rule without a
// condition always matches.
func (e *Evaluator) Match(r *Rule, f Facts) (bool, error) {
	if strings.TrimSpace(r.Conditions) == "" {
		return true, nil
	}

	program, err := e.program(r.Conditions)
	if err != nil {
		return false, err
	}

	metadata := f.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return run(program, map[string]any{
		varCaseID:        f.CaseID,
		varTrigger:       f.Trigger,
		varProofEventID:  f.ProofEventID,
		varRecipientType: string(r.RecipientType),
		varMetadata:      metadata,
	})
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	return e.cache.GetOrCompile(expression, func() (cel.Program, error) {
		return compile(e.env, expression)
	})
}
