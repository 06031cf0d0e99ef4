package model

import (
	"time"

	"static-deploy/internal/deploy"
	"static-deploy/internal/diagnose"
	"static-deploy/internal/report"
)

const (
	StatusDeploying = "deploying"
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

type SSHTestResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

type DeployResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId,omitempty"`
	Message string `json:"message,omitempty"`
}

type ProgressResponse struct {
	Success    bool           `json:"success"`
	TaskID     string         `json:"taskId"`
	Status     string         `json:"status"`
	Progress   float64        `json:"progress"`
	Step       string         `json:"step,omitempty"`
	Logs       []string       `json:"logs"`
	Error      string         `json:"error,omitempty"`
	FailedStep string         `json:"failedStep,omitempty"`
	Result     *deploy.Result `json:"result,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

type DiagnoseResponse struct {
	Success bool              `json:"success"`
	Summary *diagnose.Summary `json:"summary,omitempty"`
	Lines   []report.Line     `json:"lines"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
