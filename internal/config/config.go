package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/procurement-tracker/pkg/utils"
)

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverXLSX   = "xlsx"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Store        StoreConfig        `mapstructure:"store"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Notification NotificationConfig `mapstructure:"notification"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	AuthZ        AuthZConfig        `mapstructure:"authz"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StoreConfig selects the document and audit backend. Reminders and the
// vendor directory always live in the database.
type StoreConfig struct {
	Driver       string `mapstructure:"driver"`
	WorkbookPath string `mapstructure:"workbook_path"`
}

// WorkflowConfig holds transition rules and automated driver thresholds
type WorkflowConfig struct {
	LockMode              string        `mapstructure:"lock_mode"`
	LockTimeout           time.Duration `mapstructure:"lock_timeout"`
	ProcurementRole       string        `mapstructure:"procurement_role"`
	SystemActor           string        `mapstructure:"system_actor"`
	ProcurementRecipients []string      `mapstructure:"procurement_recipients"`
	QuotesThreshold       string        `mapstructure:"quotes_threshold"`
	AdjudicationThreshold string        `mapstructure:"adjudication_threshold"`
	MaxLandingMonths      int           `mapstructure:"max_landing_months"`
	WarningDays           int           `mapstructure:"warning_days"`
	CancelAfterDays       int           `mapstructure:"cancel_after_days"`
	ReminderInitialDays   float64       `mapstructure:"reminder_initial_days"`
	ReminderFloorDays     float64       `mapstructure:"reminder_floor_days"`
}

// NotificationConfig holds notification transport settings
type NotificationConfig struct {
	Log  bool       `mapstructure:"log"`
	Lark LarkConfig `mapstructure:"lark"`
	NATS NATSConfig `mapstructure:"nats"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
}

// NATSConfig holds NATS publisher configuration
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	ClientName    string `mapstructure:"client_name"`
}

// SchedulerConfig holds the cron specs of the automated sweeps
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Timezone       string `mapstructure:"timezone"`
	AutoCancelSpec string `mapstructure:"auto_cancel_spec"`
	ReminderSpec   string `mapstructure:"reminder_spec"`
}

// AuthZConfig lists the roles held by each actor
type AuthZConfig struct {
	Grants []Grant `mapstructure:"grants"`
}

// Grant gives roles to one actor. Actors are email addresses, which viper
// cannot use as map keys because of the dot.
type Grant struct {
	Actor string   `mapstructure:"actor"`
	Roles []string `mapstructure:"roles"`
}

// GrantMap returns actor -> roles, merging repeated actors
func (a AuthZConfig) GrantMap() map[string][]string {
	out := make(map[string][]string, len(a.Grants))
	for _, g := range a.Grants {
		out[g.Actor] = append(out[g.Actor], g.Roles...)
	}
	return out
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads .env files, then the YAML file at configPath, then environment
// variables. An empty configPath skips the file.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PROCUREMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Workflow.ProcurementRecipients = utils.NormalizeRecipients(cfg.Workflow.ProcurementRecipients)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFiles loads each existing file into the process environment without
// overriding variables that are already set
func loadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := gotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/procurement.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.workbook_path", "data/procurement.xlsx")

	v.SetDefault("workflow.lock_mode", "document")
	v.SetDefault("workflow.lock_timeout", 30*time.Second)
	v.SetDefault("workflow.procurement_role", "procurement")
	v.SetDefault("workflow.system_actor", "system")
	v.SetDefault("workflow.procurement_recipients", []string{})
	v.SetDefault("workflow.quotes_threshold", "5000")
	v.SetDefault("workflow.adjudication_threshold", "50000")
	v.SetDefault("workflow.max_landing_months", 6)
	v.SetDefault("workflow.warning_days", 30)
	v.SetDefault("workflow.cancel_after_days", 40)
	v.SetDefault("workflow.reminder_initial_days", 5.0)
	v.SetDefault("workflow.reminder_floor_days", 1.0)

	v.SetDefault("notification.log", true)
	v.SetDefault("notification.lark.enabled", false)
	v.SetDefault("notification.lark.app_id", "")
	v.SetDefault("notification.lark.app_secret", "")
	v.SetDefault("notification.nats.enabled", false)
	v.SetDefault("notification.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("notification.nats.subject_prefix", "procurement.notifications")
	v.SetDefault("notification.nats.client_name", "procurement-tracker")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "Local")
	v.SetDefault("scheduler.auto_cancel_spec", "0 6 * * 1-5")
	v.SetDefault("scheduler.reminder_spec", "0 9 * * 1-5")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Credentials keep their conventional unprefixed names
	_ = v.BindEnv("notification.lark.app_id", "PROCUREMENT_NOTIFICATION_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("notification.lark.app_secret", "PROCUREMENT_NOTIFICATION_LARK_APP_SECRET", "LARK_APP_SECRET")
	_ = v.BindEnv("notification.nats.url", "PROCUREMENT_NOTIFICATION_NATS_URL", "NATS_URL")
	_ = v.BindEnv("database.path", "PROCUREMENT_DATABASE_PATH", "DATABASE_PATH")
}

// Location resolves the scheduler timezone
func (c *SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Store.Driver {
	case DriverSQLite:
	case DriverXLSX:
		if c.Store.WorkbookPath == "" {
			return fmt.Errorf("store.workbook_path is required for the xlsx driver")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverXLSX, c.Store.Driver)
	}

	if err := c.Workflow.validate(); err != nil {
		return err
	}

	for i, g := range c.AuthZ.Grants {
		if strings.TrimSpace(g.Actor) == "" {
			return fmt.Errorf("authz.grants[%d].actor is required", i)
		}
	}

	if c.Notification.Lark.Enabled {
		if c.Notification.Lark.AppID == "" {
			return fmt.Errorf("notification.lark.app_id is required")
		}
		if c.Notification.Lark.AppSecret == "" {
			return fmt.Errorf("notification.lark.app_secret is required")
		}
	}
	if c.Notification.NATS.Enabled && c.Notification.NATS.URL == "" {
		return fmt.Errorf("notification.nats.url is required")
	}

	if c.Scheduler.Enabled {
		if _, err := c.Scheduler.Location(); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
		if _, err := cron.ParseStandard(c.Scheduler.AutoCancelSpec); err != nil {
			return fmt.Errorf("scheduler.auto_cancel_spec: %w", err)
		}
		if _, err := cron.ParseStandard(c.Scheduler.ReminderSpec); err != nil {
			return fmt.Errorf("scheduler.reminder_spec: %w", err)
		}
	}

	return nil
}

func (w *WorkflowConfig) validate() error {
	switch w.LockMode {
	case "document", "global":
	default:
		return fmt.Errorf("workflow.lock_mode must be \"document\" or \"global\", got %q", w.LockMode)
	}
	if w.LockTimeout <= 0 {
		return fmt.Errorf("workflow.lock_timeout must be positive")
	}
	if w.ProcurementRole == "" {
		return fmt.Errorf("workflow.procurement_role is required")
	}
	if w.SystemActor == "" {
		return fmt.Errorf("workflow.system_actor is required")
	}
	if err := utils.ValidateRecipients(w.ProcurementRecipients); err != nil {
		return fmt.Errorf("workflow.procurement_recipients: %w", err)
	}

	quotes, err := decimal.NewFromString(w.QuotesThreshold)
	if err != nil {
		return fmt.Errorf("workflow.quotes_threshold: %w", err)
	}
	adjudication, err := decimal.NewFromString(w.AdjudicationThreshold)
	if err != nil {
		return fmt.Errorf("workflow.adjudication_threshold: %w", err)
	}
	if adjudication.LessThan(quotes) {
		return fmt.Errorf("workflow.adjudication_threshold must not be below workflow.quotes_threshold")
	}

	if w.MaxLandingMonths <= 0 {
		return fmt.Errorf("workflow.max_landing_months must be positive")
	}
	if w.WarningDays <= 0 || w.CancelAfterDays <= w.WarningDays {
		return fmt.Errorf("workflow.warning_days must be positive and below workflow.cancel_after_days")
	}
	if w.ReminderInitialDays <= 0 || w.ReminderFloorDays <= 0 || w.ReminderFloorDays > w.ReminderInitialDays {
		return fmt.Errorf("workflow reminder intervals must be positive with floor <= initial")
	}
	return nil
}
