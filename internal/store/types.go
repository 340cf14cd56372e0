// Package store implements the State Store (spec §4.1): the MongoDB-backed
// persistence of workflow documents and the atomic field/array/counter
// mutators the rest of the system is built on.
package store

import "time"

// Workflow is the persistence unit, keyed by WorkflowID (spec §3).
type Workflow struct {
	WorkflowID   string            `bson:"workflow_id" json:"workflow_id"`
	WorkflowName string            `bson:"workflow_name" json:"workflow_name"`
	Version      string            `bson:"version" json:"version"`
	BaseContext  map[string]string `bson:"base_context" json:"base_context"`

	Steps           []Step   `bson:"steps" json:"steps"`
	WorkflowOutputs []string `bson:"workflow_outputs,omitempty" json:"workflow_outputs,omitempty"`

	Status string `bson:"status" json:"status"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`

	AuthToken string `bson:"auth_token,omitempty" json:"auth_token,omitempty"`

	ExecutionMetadata *ExecutionMetadata `bson:"execution_metadata,omitempty" json:"execution_metadata,omitempty"`
	LogFilePath       string             `bson:"log_file_path,omitempty" json:"log_file_path,omitempty"`
}

// Step is one node of a workflow's DAG (spec §3).
type Step struct {
	StepName string                 `bson:"step_name" json:"step_name"`
	App      string                 `bson:"app" json:"app"`
	Params   map[string]interface{} `bson:"params" json:"params"`
	Outputs  map[string]string      `bson:"outputs,omitempty" json:"outputs,omitempty"`
	DependsOn []string              `bson:"depends_on,omitempty" json:"depends_on,omitempty"`

	StepID string `bson:"step_id,omitempty" json:"step_id,omitempty"`
	TaskID string `bson:"task_id,omitempty" json:"task_id,omitempty"`

	Status string `bson:"status" json:"status"`

	SubmittedAt  *time.Time `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	StartedAt    *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	ElapsedTime  float64    `bson:"elapsed_time,omitempty" json:"elapsed_time,omitempty"`
	ErrorMessage string     `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

// Name, ID, AppName, StatusValue, and DependsOn satisfy internal/dag.StepLike
// so a []Step slice can be handed directly to dag.Build.
func (s Step) Name() string        { return s.StepName }
func (s Step) ID() string          { return s.StepID }
func (s Step) AppName() string     { return s.App }
func (s Step) StatusValue() string { return s.Status }
func (s Step) DependsOn() []string { return s.DependsOn }

// ExecutionMetadata tracks in-flight and completed step counts for one
// workflow (spec §3), present iff the workflow's status >= pending.
type ExecutionMetadata struct {
	TotalSteps     int `bson:"total_steps" json:"total_steps"`
	PendingSteps   int `bson:"pending_steps" json:"pending_steps"`
	RunningSteps   int `bson:"running_steps" json:"running_steps"`
	CompletedSteps int `bson:"completed_steps" json:"completed_steps"`
	FailedSteps    int `bson:"failed_steps" json:"failed_steps"`

	CurrentlyRunningStepIDs []string `bson:"currently_running_step_ids,omitempty" json:"currently_running_step_ids,omitempty"`
	CompletedStepIDs        []string `bson:"completed_step_ids,omitempty" json:"completed_step_ids,omitempty"`

	MaxParallelSteps int `bson:"max_parallel_steps" json:"max_parallel_steps"`
}

// Workflow status values (spec §3).
const (
	StatusPlanned   = "planned"
	StatusPending   = "pending"
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// IsTerminalWorkflowStatus reports whether a workflow-level status is one of
// the three terminal states named in spec §3.
func IsTerminalWorkflowStatus(status string) bool {
	return status == StatusSucceeded || status == StatusFailed || status == StatusCancelled
}
