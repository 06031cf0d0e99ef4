package utils

import "fmt"

const (
	CodeSSH        = 1001
	CodeDeploy     = 2001
	CodeConflict   = 2002
	CodeValidation = 3001
	CodeNotFound   = 4004
	CodeSystem     = 5001
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func NewSSHError(err error) *APIError {
	return &APIError{
		Code:    CodeSSH,
		Message: "SSH connection error",
		Details: err.Error(),
	}
}

func NewDeployError(step string, err error) *APIError {
	return &APIError{
		Code:    CodeDeploy,
		Message: fmt.Sprintf("deployment step %s failed", step),
		Details: err.Error(),
	}
}

func NewConflictError(taskID string) *APIError {
	return &APIError{
		Code:    CodeConflict,
		Message: "a deployment is already running",
		Details: taskID,
	}
}

func NewValidationError(field string, value interface{}) *APIError {
	return &APIError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("validation failed: %s", field),
		Details: fmt.Sprintf("invalid value: %v", value),
	}
}

func NewNotFoundError(what, id string) *APIError {
	return &APIError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", what),
		Details: id,
	}
}

func NewSystemError(err error) *APIError {
	return &APIError{
		Code:    CodeSystem,
		Message: "system error",
		Details: err.Error(),
	}
}
