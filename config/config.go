package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"jiaming2012/labor-export/models"
	"jiaming2012/labor-export/service"
	"jiaming2012/labor-export/service/diff"
)

// Configuration holds the fixed settings of the export job.
type Configuration struct {
	ExportTarget   string `env:"EXPORT_TARGET" envDefault:"MAINTENANCE_HOURS"`
	ExportDir      string `env:"EXPORT_DIR" envDefault:"output/export"`
	ExportFileName string `env:"EXPORT_FILE_NAME" envDefault:"labor_%s.csv"` // %s is replaced by the run timestamp

	PayCodeSetType      string   `env:"PAY_CODE_SET_TYPE" envDefault:"PAY_CODE"`
	PayCodeSetName      string   `env:"PAY_CODE_SET_NAME" envDefault:"MAINTENANCE_EXPORT"`
	DoubleRatePayCodes  []string `env:"DOUBLE_RATE_PAY_CODES" envSeparator:"," envDefault:"DOUBLE_TIME,HOLIDAY_WORKED"`
	CompensatingPayCode string   `env:"COMPENSATING_PAY_CODE" envDefault:"WORKED_ALLOCATED_REG"`
	WorkOrderPrefixes   []string `env:"VALID_FWO_PREFIXES" envSeparator:"," envDefault:"M,F"`

	LookbackMonths  int    `env:"LOOKBACK_MONTHS" envDefault:"3"`
	GraceMinutes    int    `env:"GRACE_MINUTES" envDefault:"60"`
	PayPeriodDays   int    `env:"PAY_PERIOD_DAYS" envDefault:"14"`
	PayPeriodAnchor string `env:"PAY_PERIOD_ANCHOR" envDefault:"2024-01-01"`
	PriorPeriodMode string `env:"PRIOR_PERIOD_MODE" envDefault:"on-change"`
	RetractOnTerm   bool   `env:"RETRACT_ON_TERM" envDefault:"true"`
	LogData         bool   `env:"LOG_DATA" envDefault:"false"`
	StrictOrdering  bool   `env:"STRICT_ORDERING" envDefault:"false"`

	Delimiter     string `env:"DELIMITER" envDefault:","`
	IncludeHeader bool   `env:"INCLUDE_HEADER" envDefault:"false"`

	DatabaseURL string `env:"DATABASE_URL"`

	ReferenceDataURL      string        `env:"REFERENCE_DATA_URL"`
	ReferenceDataUser     string        `env:"REFERENCE_DATA_USER"`
	ReferenceDataPassword string        `env:"REFERENCE_DATA_PASSWORD"`
	ReferenceDataTimeout  time.Duration `env:"REFERENCE_DATA_TIMEOUT" envDefault:"30s"`
	EmployeeFilter        string        `env:"EMPLOYEE_FILTER" envDefault:"active"`

	SFTPServer     string        `env:"SFTP_SERVER"`
	SFTPUser       string        `env:"SFTP_USER"`
	SFTPKeyPath    string        `env:"SFTP_KEY_PATH"`
	SFTPPassword   string        `env:"SFTP_PASSWORD"`
	SFTPRemoteDir  string        `env:"SFTP_REMOTE_DIR" envDefault:"/"`
	SFTPTimeout    time.Duration `env:"SFTP_TIMEOUT" envDefault:"30s"`
	SFTPKnownHosts string        `env:"SFTP_KNOWN_HOSTS"`

	SummaryPDFDir    string        `env:"SUMMARY_PDF_DIR"`
	ScheduleInterval time.Duration `env:"SCHEDULE_INTERVAL" envDefault:"24h"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// Load reads an optional dotenv file (ENV_FILE, default .env) and then the environment.
func Load() (*Configuration, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := Configuration{}
	if err := env.Parse(&cfg); err != nil {
		return nil, &models.ConfigurationError{Reason: "failed to parse environment", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Configuration) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return &models.ConfigurationError{Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(c.ExportTarget) == "" {
		return fail("export target is empty")
	}

	if c.GraceMinutes < 0 {
		return fail("grace period must not be negative, got %d", c.GraceMinutes)
	}

	if c.LookbackMonths < 0 {
		return fail("lookback must not be negative, got %d", c.LookbackMonths)
	}

	if c.PayPeriodDays <= 0 {
		return fail("pay period length must be positive, got %d", c.PayPeriodDays)
	}

	if _, err := time.Parse("2006-01-02", c.PayPeriodAnchor); err != nil {
		return fail("invalid pay period anchor %q", c.PayPeriodAnchor)
	}

	if _, err := diff.ParsePriorPeriodMode(c.PriorPeriodMode); err != nil {
		return &models.ConfigurationError{Reason: "invalid prior period mode", Err: err}
	}

	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return fail("delimiter must be a single character, got %q", c.Delimiter)
	}

	if len(c.Prefixes()) == 0 {
		return fail("no field work order prefixes configured")
	}

	if c.CompensatingPayCode == "" {
		return fail("compensating pay code is empty")
	}

	if c.SFTPEnabled() && c.SFTPKeyPath == "" && c.SFTPPassword == "" {
		return fail("sftp server %s configured without a key path or password", c.SFTPServer)
	}

	for _, code := range c.DoubleRatePayCodes {
		if strings.TrimSpace(code) == c.CompensatingPayCode {
			return fail("compensating pay code %s cannot itself be double rate", code)
		}
	}

	return nil
}

// Prefixes returns the non-blank work order prefixes.
func (c *Configuration) Prefixes() []string {
	var out []string
	for _, p := range c.WorkOrderPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Configuration) DoubleRateSet() models.PayCodeSet {
	return models.NewPayCodeSet(c.DoubleRatePayCodes...)
}

func (c *Configuration) PayPeriod() service.PayPeriod {
	anchor, _ := time.ParseInLocation("2006-01-02", c.PayPeriodAnchor, time.Local)
	return service.PayPeriod{Anchor: anchor, Days: c.PayPeriodDays}
}

func (c *Configuration) Mode() diff.PriorPeriodMode {
	m, _ := diff.ParsePriorPeriodMode(c.PriorPeriodMode)
	return m
}

// ExportPath returns the destination of the export file for a run started at t.
func (c *Configuration) ExportPath(t time.Time) string {
	name := c.ExportFileName
	if strings.Contains(name, "%s") {
		name = fmt.Sprintf(name, t.Format("20060102_150405"))
	}
	return filepath.Join(c.ExportDir, name)
}

func (c *Configuration) SFTPEnabled() bool {
	return c.SFTPServer != ""
}

func (c *Configuration) EngineConfig() diff.EngineConfig {
	return diff.EngineConfig{
		Target:          c.ExportTarget,
		PayPeriod:       c.PayPeriod(),
		LookbackMonths:  c.LookbackMonths,
		PriorPeriodMode: c.Mode(),
		RetractOnTerm:   c.RetractOnTerm,
		LogData:         c.LogData,
	}
}
