package engine

import "errors"

var (
	// ErrDefinitionNotFound — определение workflow не зарегистрировано.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrStepFailed — шаг исчерпал попытки выполнения.
	ErrStepFailed = errors.New("step failed")
)
