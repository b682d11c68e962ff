// Package container provides dependency injection and lifecycle management
// for the procurement tracker.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/procurement-tracker/internal/application/lock"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/domain/rules"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/external/lark"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/messaging"
	"github.com/garyjia/procurement-tracker/pkg/database"
)

// Config holds the resolved settings of every subsystem
type Config struct {
	Database     database.Config
	Store        StoreConfig
	Workflow     WorkflowConfig
	Notification NotificationConfig
	Scheduler    SchedulerConfig

	// Grants maps actor -> roles
	Grants map[string][]string
}

// StoreConfig selects the document and audit backend
type StoreConfig struct {
	// Driver is "sqlite" or "xlsx"
	Driver string

	// WorkbookPath is the spreadsheet used by the xlsx driver
	WorkbookPath string
}

// WorkflowConfig holds engine and automated driver settings
type WorkflowConfig struct {
	LockMode        lock.Mode
	LockTimeout     time.Duration
	ProcurementRole string
	SystemActor     string

	// ProcurementRecipients is copied on status changes, warnings and reminders
	ProcurementRecipients []string

	Policy     rules.Policy
	AutoCancel service.AutoCancelConfig
	Reminder   service.ReminderConfig
}

// NotificationConfig selects the notification transports. Nil disables one.
type NotificationConfig struct {
	Log  bool
	Lark *lark.Config
	NATS *messaging.Config
}

// SchedulerConfig holds the sweep schedules
type SchedulerConfig struct {
	Enabled        bool
	Location       *time.Location
	AutoCancelSpec string
	ReminderSpec   string
}

// Validate checks the fields the container cannot default
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	switch c.Store.Driver {
	case "sqlite", "":
	case "xlsx":
		if c.Store.WorkbookPath == "" {
			return fmt.Errorf("workbook path is required for the xlsx store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Workflow.ProcurementRole == "" {
		return fmt.Errorf("procurement role is required")
	}
	if c.Workflow.SystemActor == "" {
		return fmt.Errorf("system actor is required")
	}
	if c.Scheduler.Enabled && (c.Scheduler.AutoCancelSpec == "" || c.Scheduler.ReminderSpec == "") {
		return fmt.Errorf("scheduler specs are required when the scheduler is enabled")
	}
	return nil
}
