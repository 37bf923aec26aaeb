// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig covers framework-level settings (ports, TLS, logging
// level, timeouts); AppConfig is everything specific to the sync engine.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// BatchLimit caps operations per bulk-write chunk. Kept configurable:
	// the safe value depends on the provider's per-batch ceiling.
	BatchLimit int

	// WatchEvents controls the member change-stream watcher. Disable on
	// deployments without replica-set change streams (local dev).
	WatchEvents bool

	// Daily close job configuration.
	DefaultTimeZone    string // fallback IANA zone for orgs with none set
	CloseSchedule      string // cron expression driving the close sweep
	CloseWindowMinutes int    // eligible minutes after session end + 1

	// AdminAPIKey guards the administrative operations endpoints. The
	// full role system lives in the account service; this key is the
	// deployment-level gate in front of it.
	AdminAPIKey string

	// CloseJobTimeout bounds one close sweep.
	CloseJobTimeout time.Duration
}
