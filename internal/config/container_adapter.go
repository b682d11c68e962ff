package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/application/lock"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/container"
	"github.com/garyjia/procurement-tracker/internal/domain/rules"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/external/lark"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/messaging"
	"github.com/garyjia/procurement-tracker/pkg/database"
)

// ToContainerConfig converts the file-based configuration into the typed
// settings the container wires. Call Validate first.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	quotes, err := decimal.NewFromString(c.Workflow.QuotesThreshold)
	if err != nil {
		return nil, fmt.Errorf("workflow.quotes_threshold: %w", err)
	}
	adjudication, err := decimal.NewFromString(c.Workflow.AdjudicationThreshold)
	if err != nil {
		return nil, fmt.Errorf("workflow.adjudication_threshold: %w", err)
	}
	location, err := c.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}

	out := &container.Config{
		Database: database.Config{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Store: container.StoreConfig{
			Driver:       c.Store.Driver,
			WorkbookPath: c.Store.WorkbookPath,
		},
		Workflow: container.WorkflowConfig{
			LockMode:              lock.Mode(c.Workflow.LockMode),
			LockTimeout:           c.Workflow.LockTimeout,
			ProcurementRole:       c.Workflow.ProcurementRole,
			SystemActor:           c.Workflow.SystemActor,
			ProcurementRecipients: c.Workflow.ProcurementRecipients,
			Policy: rules.Policy{
				QuotesThreshold:       quotes,
				AdjudicationThreshold: adjudication,
				MaxLandingMonths:      c.Workflow.MaxLandingMonths,
			},
			AutoCancel: service.AutoCancelConfig{
				WarningDays:     c.Workflow.WarningDays,
				CancelAfterDays: c.Workflow.CancelAfterDays,
			},
			Reminder: service.ReminderConfig{
				Policy: rules.ReminderPolicy{
					InitialDays: c.Workflow.ReminderInitialDays,
					FloorDays:   c.Workflow.ReminderFloorDays,
				},
			},
		},
		Notification: container.NotificationConfig{
			Log: c.Notification.Log,
		},
		Scheduler: container.SchedulerConfig{
			Enabled:        c.Scheduler.Enabled,
			Location:       location,
			AutoCancelSpec: c.Scheduler.AutoCancelSpec,
			ReminderSpec:   c.Scheduler.ReminderSpec,
		},
		Grants: c.AuthZ.GrantMap(),
	}

	if c.Notification.Lark.Enabled {
		out.Notification.Lark = &lark.Config{
			AppID:     c.Notification.Lark.AppID,
			AppSecret: c.Notification.Lark.AppSecret,
		}
	}
	if c.Notification.NATS.Enabled {
		out.Notification.NATS = &messaging.Config{
			URL:           c.Notification.NATS.URL,
			SubjectPrefix: c.Notification.NATS.SubjectPrefix,
			ClientName:    c.Notification.NATS.ClientName,
		}
	}

	return out, nil
}
