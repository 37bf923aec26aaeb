// internal/app/sync/dailyclose/dailyclose.go
//
// The daily close job sweeps all organizations once a minute and, inside a
// narrow per-weekday window after each org's session end, marks every
// member without a "prayed" record for the org-local date as missed. The
// window math runs entirely in the org's own timezone, so orgs around the
// world close on their own clocks off one global schedule.
package dailyclose

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	lockstore "github.com/dalemusser/attendhub/internal/app/store/closelocks"
	statusstore "github.com/dalemusser/attendhub/internal/app/store/dailystatus"
	memberstore "github.com/dalemusser/attendhub/internal/app/store/members"
	orgstore "github.com/dalemusser/attendhub/internal/app/store/organizations"
	"github.com/dalemusser/attendhub/internal/app/system/batch"
	"github.com/dalemusser/attendhub/internal/app/system/timezones"
	"github.com/dalemusser/attendhub/internal/domain/models"
)

// sessionEnds maps each eligible weekday to the local time the session
// ends. Sunday has no session, so it never closes.
var sessionEnds = map[time.Weekday]string{
	time.Monday:    "06:30",
	time.Tuesday:   "06:30",
	time.Wednesday: "06:30",
	time.Thursday:  "06:30",
	time.Friday:    "06:30",
	time.Saturday:  "07:00",
}

// SessionEnd returns the local "HH:MM" session end for a weekday, and
// whether that weekday holds a session at all.
func SessionEnd(wd time.Weekday) (string, bool) {
	end, ok := sessionEnds[wd]
	return end, ok
}

// DateFormat is the org-local calendar date layout used as part of the
// daily status and lock identities.
const DateFormat = "2006-01-02"

// Config tunes the closer.
type Config struct {
	// DefaultLocation applies to orgs with no configured timezone.
	DefaultLocation *time.Location
	// Window is how long after session end + 1 minute the close stays
	// eligible. Zero means DefaultWindow.
	Window time.Duration
	// Now is the clock; nil means time.Now. Injected by tests.
	Now func() time.Time
}

// DefaultWindow keeps the close from firing on stale ticks long after the
// session ended.
const DefaultWindow = 5 * time.Minute

type Closer struct {
	orgs     *orgstore.Store
	members  *memberstore.Store
	statuses *statusstore.Store
	locks    *lockstore.Store
	writer   *batch.Writer
	log      *zap.Logger

	defaultLoc *time.Location
	window     time.Duration
	now        func() time.Time
}

func New(orgs *orgstore.Store, members *memberstore.Store, statuses *statusstore.Store, locks *lockstore.Store, writer *batch.Writer, logger *zap.Logger, cfg Config) *Closer {
	c := &Closer{
		orgs:       orgs,
		members:    members,
		statuses:   statuses,
		locks:      locks,
		writer:     writer,
		log:        logger,
		defaultLoc: cfg.DefaultLocation,
		window:     cfg.Window,
		now:        cfg.Now,
	}
	if c.defaultLoc == nil {
		c.defaultLoc = time.UTC
	}
	if c.window <= 0 {
		c.window = DefaultWindow
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Run is one tick: every org is evaluated independently and sequentially,
// and one org's failure never stops the sweep.
func (c *Closer) Run(ctx context.Context) error {
	runID := uuid.NewString()

	orgs, err := c.orgs.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list orgs: %w", err)
	}

	closed, failed := 0, 0
	for _, org := range orgs {
		marked, did, err := c.CloseOrg(ctx, org)
		if err != nil {
			failed++
			c.log.Error("daily close failed for org",
				zap.String("run_id", runID),
				zap.String("org_id", org.ID.Hex()),
				zap.Error(err))
			continue
		}
		if did {
			closed++
			c.log.Info("daily close completed",
				zap.String("run_id", runID),
				zap.String("org_id", org.ID.Hex()),
				zap.Int("marked", marked))
		}
	}

	if closed > 0 || failed > 0 {
		c.log.Info("daily close tick finished",
			zap.String("run_id", runID),
			zap.Int("orgs", len(orgs)),
			zap.Int("closed", closed),
			zap.Int("failed", failed))
	}
	return nil
}

// CloseOrg evaluates one org for this instant. It reports how many members
// were marked missed and whether a close actually ran; all the skip
// conditions (feature flag, weekday, window, existing lock) return
// (0, false, nil).
func (c *Closer) CloseOrg(ctx context.Context, org models.Organization) (int, bool, error) {
	if !org.DailyCloseEnabled() {
		return 0, false, nil
	}

	loc := timezones.LocationOrDefault(org.Settings.TimeZone, c.defaultLoc)
	local := c.now().In(loc)

	end, ok := SessionEnd(local.Weekday())
	if !ok {
		return 0, false, nil
	}
	if !inWindow(local, end, c.window) {
		return 0, false, nil
	}

	date := local.Format(DateFormat)
	locked, err := c.locks.Exists(ctx, org.ID, date)
	if err != nil {
		return 0, false, fmt.Errorf("check close lock: %w", err)
	}
	if locked {
		return 0, false, nil
	}

	members, err := c.members.ListActiveUnfrozen(ctx, org.ID)
	if err != nil {
		return 0, false, fmt.Errorf("list members: %w", err)
	}
	statuses, err := c.statuses.StatusesForDate(ctx, org.ID, date)
	if err != nil {
		return 0, false, fmt.Errorf("load statuses: %w", err)
	}

	now := time.Now().UTC()
	var ops []mongo.WriteModel
	for _, m := range members {
		if statuses[m.MemberID] == models.StatusPrayed {
			continue
		}
		ops = append(ops, c.statuses.MissedUpsertModel(org.ID, m.MemberID, date, now))
	}

	res, err := c.writer.Commit(ctx, c.statuses.Collection(), ops)
	if err != nil {
		// No lock: the next tick inside the window retries, and the
		// keyed merge-writes converge.
		return res.Committed, false, fmt.Errorf("commit missed statuses (%d/%d applied): %w", res.Committed, res.Attempted, err)
	}

	if err := c.locks.Acquire(ctx, org.ID, date, len(ops)); err != nil {
		return len(ops), false, fmt.Errorf("write close lock: %w", err)
	}
	return len(ops), true, nil
}

// inWindow reports whether local time sits inside [end+1m, end+1m+window).
// The one-minute offset keeps the close strictly after the session end.
func inWindow(local time.Time, end string, window time.Duration) bool {
	endMin, err := parseClock(end)
	if err != nil {
		return false
	}
	cur := local.Hour()*60 + local.Minute()
	start := endMin + 1
	return cur >= start && cur < start+int(window.Minutes())
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}
