// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dalemusser/attendhub/internal/app/system/batch"
	"github.com/dalemusser/attendhub/internal/app/system/timezones"
)

// appConfigKeys defines the configuration keys for AttendHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, batch_limit, etc.
//   - Environment variables: ATTENDHUB_MONGO_URI, ATTENDHUB_BATCH_LIMIT, etc.
//   - Command-line flags: --mongo_uri, --batch_limit, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "attend_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "batch_limit", Default: batch.DefaultLimit, Desc: "Max operations per bulk-write chunk (keep headroom under the server's 500-op ceiling)"},
	{Name: "watch_events", Default: true, Desc: "Run the member change-stream watcher (requires replica-set change streams)"},

	{Name: "default_time_zone", Default: "Asia/Seoul", Desc: "Fallback IANA timezone for organizations with none configured"},
	{Name: "close_schedule", Default: "* * * * *", Desc: "Cron expression for the daily close sweep"},
	{Name: "close_window_minutes", Default: 5, Desc: "Minutes after session end + 1 during which a close may run"},
	{Name: "close_job_timeout", Default: "4m", Desc: "Deadline for one daily close sweep (e.g., 4m, 90s)"},

	{Name: "admin_api_key", Default: "", Desc: "Bearer key for the /admin maintenance endpoints (empty disables them)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "ATTENDHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		BatchLimit:  appValues.Int("batch_limit"),
		WatchEvents: appValues.Bool("watch_events"),

		DefaultTimeZone:    appValues.String("default_time_zone"),
		CloseSchedule:      appValues.String("close_schedule"),
		CloseWindowMinutes: appValues.Int("close_window_minutes"),
		CloseJobTimeout:    appValues.Duration("close_job_timeout", 4*time.Minute),

		AdminAPIKey: appValues.String("admin_api_key"),
	}
	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// This is the place to fail fast on values the engine would otherwise
// only trip over at 6:31 in some tenant's morning.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.BatchLimit <= 0 || appCfg.BatchLimit > 500 {
		return fmt.Errorf("batch_limit must be in 1..500, got %d", appCfg.BatchLimit)
	}
	if !timezones.Valid(appCfg.DefaultTimeZone) {
		return fmt.Errorf("default_time_zone %q is not a known IANA zone", appCfg.DefaultTimeZone)
	}
	if _, err := cron.ParseStandard(appCfg.CloseSchedule); err != nil {
		return fmt.Errorf("close_schedule %q: %w", appCfg.CloseSchedule, err)
	}
	if appCfg.CloseWindowMinutes <= 0 {
		return fmt.Errorf("close_window_minutes must be positive, got %d", appCfg.CloseWindowMinutes)
	}
	return nil
}
