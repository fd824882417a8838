package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix = "MINUTED"

	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "minuted.db"
	defaultLogLevel       = "info"
	defaultThreadID       = "default"
	defaultTranscriptRoot = "data/transcripts"
	defaultSyncStatePath  = "data/sync_state.json"
	defaultTokenPath      = "token.json"

	defaultContextMeetings    = 3
	defaultContextActionItems = 5
	defaultContextShared      = 5

	defaultWorkdayStartHour    = 9
	defaultWorkdayEndHour      = 18
	defaultSlotGranularityMins = 30
	defaultFollowupDurationMin = 30
)

// AppConfig captures runtime configuration for the meeting agent.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	ThreadID       string
	SharedThreadID string
	TranscriptRoot string

	SummarizerAPIKey  string
	SummarizerModel   string
	SummarizerBaseURL string

	SchedulerBaseURL string
	SchedulerToken   string
	TokenPath        string
	SyncStatePath    string
	CreateFollowups  bool

	ContextMeetings    int
	ContextActionItems int
	ContextShared      int

	WorkdayStartHour    int
	WorkdayEndHour      int
	SlotGranularityMins int
	FollowupDurationMin int
}

// LoadDotenv reads a local .env file into the process environment when present.
// A missing file is not an error.
func LoadDotenv() {
	_ = godotenv.Load()
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("thread.id", defaultThreadID)
	configViper.SetDefault("thread.shared_id", "")
	configViper.SetDefault("transcripts.root", defaultTranscriptRoot)

	configViper.SetDefault("summarizer.api_key", "")
	configViper.SetDefault("summarizer.model", "gpt-4o")
	configViper.SetDefault("summarizer.base_url", "")

	configViper.SetDefault("scheduler.base_url", "")
	configViper.SetDefault("scheduler.token", "")
	configViper.SetDefault("scheduler.token_path", defaultTokenPath)
	configViper.SetDefault("sync.state_path", defaultSyncStatePath)
	configViper.SetDefault("sync.create_followups", true)

	configViper.SetDefault("context.meetings", defaultContextMeetings)
	configViper.SetDefault("context.action_items", defaultContextActionItems)
	configViper.SetDefault("context.shared", defaultContextShared)

	configViper.SetDefault("slots.start_hour", defaultWorkdayStartHour)
	configViper.SetDefault("slots.end_hour", defaultWorkdayEndHour)
	configViper.SetDefault("slots.granularity_minutes", defaultSlotGranularityMins)
	configViper.SetDefault("slots.followup_duration_minutes", defaultFollowupDurationMin)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		ThreadID:       configViper.GetString("thread.id"),
		SharedThreadID: configViper.GetString("thread.shared_id"),
		TranscriptRoot: configViper.GetString("transcripts.root"),

		SummarizerAPIKey:  configViper.GetString("summarizer.api_key"),
		SummarizerModel:   configViper.GetString("summarizer.model"),
		SummarizerBaseURL: configViper.GetString("summarizer.base_url"),

		SchedulerBaseURL: configViper.GetString("scheduler.base_url"),
		SchedulerToken:   configViper.GetString("scheduler.token"),
		TokenPath:        configViper.GetString("scheduler.token_path"),
		SyncStatePath:    configViper.GetString("sync.state_path"),
		CreateFollowups:  configViper.GetBool("sync.create_followups"),

		ContextMeetings:    configViper.GetInt("context.meetings"),
		ContextActionItems: configViper.GetInt("context.action_items"),
		ContextShared:      configViper.GetInt("context.shared"),

		WorkdayStartHour:    configViper.GetInt("slots.start_hour"),
		WorkdayEndHour:      configViper.GetInt("slots.end_hour"),
		SlotGranularityMins: configViper.GetInt("slots.granularity_minutes"),
		FollowupDurationMin: configViper.GetInt("slots.followup_duration_minutes"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.ThreadID) == "" {
		return fmt.Errorf("thread.id is required")
	}
	if c.ContextMeetings < 0 || c.ContextActionItems < 0 || c.ContextShared < 0 {
		return fmt.Errorf("context limits must not be negative")
	}
	if c.WorkdayStartHour < 0 || c.WorkdayEndHour > 24 || c.WorkdayStartHour >= c.WorkdayEndHour {
		return fmt.Errorf("slots.start_hour must be before slots.end_hour within one day")
	}
	if c.SlotGranularityMins <= 0 {
		return fmt.Errorf("slots.granularity_minutes must be positive")
	}
	return nil
}
