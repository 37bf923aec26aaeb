// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	adminstore "github.com/dalemusser/attendhub/internal/app/store/admins"
	lockstore "github.com/dalemusser/attendhub/internal/app/store/closelocks"
	statusstore "github.com/dalemusser/attendhub/internal/app/store/dailystatus"
	memberstore "github.com/dalemusser/attendhub/internal/app/store/members"
	orgstore "github.com/dalemusser/attendhub/internal/app/store/organizations"
	"github.com/dalemusser/attendhub/internal/app/sync/counters"
	"github.com/dalemusser/attendhub/internal/app/sync/dailyclose"
	"github.com/dalemusser/attendhub/internal/app/sync/mirror"
	"github.com/dalemusser/attendhub/internal/app/system/batch"
	"github.com/dalemusser/attendhub/internal/app/system/events"
	"github.com/dalemusser/attendhub/internal/app/system/tasks"
	"github.com/dalemusser/attendhub/internal/app/system/timezones"
)

// runtime holds the long-lived engine instances built during Startup. The
// handler layer and Shutdown reach them through this package-level state,
// matching how WAFFLE hooks share resources across lifecycle stages.
type runtime struct {
	counters  *counters.Engine
	mirror    *mirror.Engine
	closer    *dailyclose.Closer
	watcher   *events.Watcher
	scheduler *tasks.Scheduler
}

var rt runtime

// Startup builds the sync engines, wires the member change-stream watcher,
// and registers the daily close job. It runs after DB connection and schema
// setup, before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	orgs := orgstore.New(db)
	admins := adminstore.New(db)
	members := memberstore.New(db)
	statuses := statusstore.New(db)
	locks := lockstore.New(db)
	writer := batch.NewWriter(appCfg.BatchLimit)

	rt.counters = counters.New(orgs, admins, members, writer, logger)
	rt.mirror = mirror.New(orgs, admins, members, writer, logger)

	defaultLoc := timezones.LocationOrDefault(appCfg.DefaultTimeZone, time.UTC)
	rt.closer = dailyclose.New(orgs, members, statuses, locks, writer, logger, dailyclose.Config{
		DefaultLocation: defaultLoc,
		Window:          time.Duration(appCfg.CloseWindowMinutes) * time.Minute,
	})

	if appCfg.WatchEvents {
		rt.watcher = events.NewWatcher(members.Collection(), logger, rt.counters, rt.mirror)
		rt.watcher.Start()
	} else {
		logger.Warn("member event watcher disabled; counters and mirrors will drift until recomputed")
	}

	rt.scheduler = tasks.NewScheduler(logger)
	if err := rt.scheduler.Add(tasks.Job{
		Name:     "daily-close",
		Schedule: appCfg.CloseSchedule,
		Timeout:  appCfg.CloseJobTimeout,
		Run:      rt.closer.Run,
	}); err != nil {
		return err
	}
	rt.scheduler.Start()

	return nil
}
