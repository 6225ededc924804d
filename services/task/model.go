package task

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// TaskRun is an execution record of a background task.
type TaskRun struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	TaskName    string         `gorm:"column:task_name;index;type:varchar(100);not null" json:"task_name"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'running'" json:"status"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
}

func (TaskRun) TableName() string { return "task_runs" }
