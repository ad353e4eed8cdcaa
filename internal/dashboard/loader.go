package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/salesbeat/fieldsync/internal/backend"
	"github.com/salesbeat/fieldsync/internal/events"
	"github.com/salesbeat/fieldsync/internal/model"
	"github.com/salesbeat/fieldsync/internal/snapshot"
	"github.com/salesbeat/fieldsync/internal/store"
)

// Config holds loader settings.
type Config struct {
	// SnapshotsDir is where offline-captured visit snapshots live.
	SnapshotsDir string

	// RevenueTarget is the rep's daily revenue target.
	RevenueTarget float64

	// Online reports current connectivity. When nil the loader always
	// attempts the authoritative fetch and relies on it failing fast.
	Online func() bool

	// Logger for loader activity.
	Logger *log.Logger
}

// Loader produces the dashboard read model from three sources that may
// disagree: the remote backend (authoritative once synced), the offline
// visits snapshot, and the durable store's own cached records.
type Loader struct {
	store  *store.Store
	remote backend.Client
	config Config

	group singleflight.Group

	mu     sync.Mutex
	onStep []func(CacheStep)

	// now is injected for deterministic tests.
	now func() time.Time
}

// NewLoader creates a dashboard loader.
func NewLoader(st *store.Store, remote backend.Client, config Config) *Loader {
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Loader{
		store:  st,
		remote: remote,
		config: config,
		now:    time.Now,
	}
}

// SetClock overrides the loader's clock. Tests only.
func (l *Loader) SetClock(now func() time.Time) {
	l.now = now
}

// OnStep registers a warming-progress observer. Each refresh announces every
// step as pending, then walks each through loading and done or error. The
// status surfaces use this for the warming progress view.
func (l *Loader) OnStep(fn func(CacheStep)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStep = append(l.onStep, fn)
}

func (l *Loader) emitStep(id string, status StepStatus) {
	l.mu.Lock()
	observers := make([]func(CacheStep), len(l.onStep))
	copy(observers, l.onStep)
	l.mu.Unlock()

	for _, step := range warmingSteps {
		if step.ID != id {
			continue
		}
		step.Status = status
		for _, fn := range observers {
			fn(step)
		}
		return
	}
}

func (l *Loader) announceSteps() {
	l.mu.Lock()
	observers := make([]func(CacheStep), len(l.onStep))
	copy(observers, l.onStep)
	l.mu.Unlock()
	if len(observers) == 0 {
		return
	}

	for _, step := range warmingSteps {
		step.Status = StepPending
		for _, fn := range observers {
			fn(step)
		}
	}
}

// Load returns the best available read model for the user and date.
//
// Policy: never block rendering behind a network round trip when any cache
// exists. A warm cached blob is returned immediately when offline, and kept
// as the silent fallback when the authoritative refresh fails. With a cold
// cache, the durable store's record collections provide an interim view.
// Only a cold cache, cold store, offline start yields the empty default
// state, never an error screen.
func (l *Loader) Load(ctx context.Context, userID, date string) (*Data, error) {
	cached := l.Cached(ctx, userID)
	if cached != nil && cached.Date != date {
		cached = nil
	}

	online := l.config.Online == nil || l.config.Online()
	if !online {
		if cached != nil {
			return cached, nil
		}
		return l.interim(ctx, userID, date), nil
	}

	data, err := l.Refresh(ctx, userID, date)
	if err == nil {
		return data, nil
	}

	// Degrade silently: log, fall back to whatever we already had.
	l.config.Logger.Printf("WARNING: dashboard refresh failed, using cache: %v", err)
	if cached != nil {
		return cached, nil
	}
	return l.interim(ctx, userID, date), nil
}

// Cached returns the persisted dashboard blob for the user, or nil when the
// cache is cold or unreadable. Cache read failures are logged and treated as
// a miss.
func (l *Loader) Cached(ctx context.Context, userID string) *Data {
	raw, err := l.store.Get(ctx, store.Dashboard, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		l.config.Logger.Printf("WARNING: dashboard cache read failed: %v", err)
		return nil
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		l.config.Logger.Printf("WARNING: dashboard cache corrupt, ignoring: %v", err)
		return nil
	}
	return &data
}

// Refresh performs the authoritative fetch, merges in local-only orders for
// today, recomputes the derived aggregates, and persists the result.
// Concurrent refreshes for the same user and date are coalesced into one
// backend round trip.
func (l *Loader) Refresh(ctx context.Context, userID, date string) (*Data, error) {
	v, err, _ := l.group.Do(userID+"|"+date, func() (interface{}, error) {
		return l.refresh(ctx, userID, date)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Data), nil
}

type pointsRow struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Date   string `json:"date"`
	Points int    `json:"points"`
}

type leaveRow struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

func (l *Loader) refresh(ctx context.Context, userID, date string) (*Data, error) {
	var (
		beatPlans  []model.BeatPlan
		visits     []model.Visit
		attendance []model.Attendance
		orders     []model.Order
		retailers  []model.Retailer
		points     []pointsRow
		leaves     []leaveRow
	)

	byUser := backend.Eq("user_id", userID)
	byDate := backend.Eq("date", date)

	l.announceSteps()

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(table string, do func(context.Context) error) {
		g.Go(func() error {
			l.emitStep(table, StepLoading)
			if err := do(gctx); err != nil {
				l.emitStep(table, StepError)
				return err
			}
			l.emitStep(table, StepDone)
			return nil
		})
	}
	fetch(backend.TableBeatPlans, func(ctx context.Context) error {
		return backend.SelectInto(ctx, l.remote, backend.TableBeatPlans, &beatPlans, byUser, byDate)
	})
	fetch(backend.TableVisits, func(ctx context.Context) error {
		return backend.SelectInto(ctx, l.remote, backend.TableVisits, &visits, byUser, byDate)
	})
	fetch(backend.TableAttendance, func(ctx context.Context) error {
		return backend.SelectInto(ctx, l.remote, backend.TableAttendance, &attendance, byUser, byDate)
	})
	fetch(backend.TableOrders, func(ctx context.Context) error {
		return backend.SelectInto(ctx, l.remote, backend.TableOrders, &orders, byUser, byDate)
	})
	fetch(backend.TableRetailers, func(ctx context.Context) error {
		return backend.SelectInto(ctx, l.remote, backend.TableRetailers, &retailers, byUser)
	})
	fetch(backend.TablePoints, func(ctx context.Context) error {
		return backend.SelectInto(ctx, l.remote, backend.TablePoints, &points, byUser, byDate)
	})
	fetch(backend.TableLeaves, func(ctx context.Context) error {
		return backend.SelectInto(ctx, l.remote, backend.TableLeaves, &leaves, byUser, byDate)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("authoritative fetch failed: %w", err)
	}

	// Offline order reconciliation covers today only: historical views show
	// remote data as-is.
	today := date == l.now().Format(model.DateFormat)
	if today {
		snapOrders, snapVisits := l.localOrders(ctx, userID, date)
		orders = MergeOrders(orders, snapOrders, l.storedOrders(ctx, userID, date))
		visits = append(visits, snapVisits...)
	}

	data := l.assemble(userID, date, beatPlans, visits, attendance, orders, retailers, points, leaves)
	data.LastUpdated = l.now()

	l.persist(ctx, data, visits, orders, retailers)
	return data, nil
}

// localOrders reads the offline visits snapshot for the user and date.
// Snapshot read failures degrade to empty, never fail the refresh.
func (l *Loader) localOrders(ctx context.Context, userID, date string) ([]model.Order, []model.Visit) {
	if l.config.SnapshotsDir == "" {
		return nil, nil
	}
	snap, err := snapshot.ReadDir(l.config.SnapshotsDir, userID, date, l.config.Logger)
	if err != nil {
		l.config.Logger.Printf("WARNING: snapshot read failed: %v", err)
		return nil, nil
	}
	return snap.Orders, snap.Visits
}

// storedOrders reads the durable store's own offline order records.
func (l *Loader) storedOrders(ctx context.Context, userID, date string) []model.Order {
	records, err := l.store.GetAll(ctx, store.Orders)
	if err != nil {
		l.config.Logger.Printf("WARNING: offline order read failed: %v", err)
		return nil
	}

	var orders []model.Order
	for _, rec := range records {
		var o model.Order
		if err := json.Unmarshal(rec.Payload, &o); err != nil {
			continue
		}
		if o.UserID == userID && o.Date == date {
			orders = append(orders, o)
		}
	}
	return orders
}

// interim builds a view from the durable store's cached collections when the
// dashboard blob is cold. Store failures degrade to the empty default state.
func (l *Loader) interim(ctx context.Context, userID, date string) *Data {
	var (
		beatPlans  []model.BeatPlan
		visits     []model.Visit
		attendance []model.Attendance
		retailers  []model.Retailer
	)
	l.loadCollection(ctx, store.BeatPlans, userID, date, &beatPlans)
	l.loadCollection(ctx, store.Visits, userID, date, &visits)
	l.loadCollection(ctx, store.Attendance, userID, date, &attendance)
	l.loadCollection(ctx, store.Retailers, userID, "", &retailers)
	orders := l.storedOrders(ctx, userID, date)

	return l.assemble(userID, date, beatPlans, visits, attendance, orders, retailers, nil, nil)
}

// loadCollection decodes a store collection into dst, filtering by user and
// (when non-empty) date.
func (l *Loader) loadCollection(ctx context.Context, collection, userID, date string, dst interface{}) {
	records, err := l.store.GetAll(ctx, collection)
	if err != nil {
		l.config.Logger.Printf("WARNING: store read of %s failed: %v", collection, err)
		return
	}

	var filtered []json.RawMessage
	for _, rec := range records {
		var probe struct {
			UserID string `json:"user_id"`
			Date   string `json:"date"`
		}
		if err := json.Unmarshal(rec.Payload, &probe); err != nil {
			continue
		}
		if probe.UserID != userID {
			continue
		}
		if date != "" && probe.Date != date {
			continue
		}
		filtered = append(filtered, rec.Payload)
	}

	buf, err := json.Marshal(filtered)
	if err != nil {
		return
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		l.config.Logger.Printf("WARNING: failed to decode cached %s: %v", collection, err)
	}
}

// assemble computes the derived aggregates from merged inputs.
func (l *Loader) assemble(
	userID, date string,
	beatPlans []model.BeatPlan,
	visits []model.Visit,
	attendance []model.Attendance,
	orders []model.Order,
	retailers []model.Retailer,
	points []pointsRow,
	leaves []leaveRow,
) *Data {
	data := Empty(userID, date)

	var planned []string
	if len(beatPlans) > 0 {
		plan := beatPlans[0]
		data.Today.BeatPlan = &plan
		planned = plan.RetailerIDs
	}
	if len(attendance) > 0 {
		att := attendance[0]
		data.Today.Attendance = &att
	}

	data.Today.Visits = dedupeVisits(visits)
	data.Today.Orders = orders

	data.Today.BeatProgress = ClassifyBeatProgress(planned, visits, orders)
	data.Today.RevenueTarget = l.config.RevenueTarget
	data.Today.RevenueAchieved = RevenueAchieved(orders)
	data.Today.PotentialRevenue = PotentialRevenue(planned, orders, retailers)
	data.Today.DailyProgressPct = DailyProgressPct(data.Today.BeatProgress)

	for _, p := range points {
		data.Today.Points += p.Points
	}

	data.Performance.TotalVisits = len(data.Today.Visits)
	data.Performance.TotalOrders = len(orders)
	data.Performance.TotalRevenue = data.Today.RevenueAchieved
	for _, r := range retailers {
		if r.CreatedDate == date {
			data.Performance.NewRetailers++
		}
	}
	for _, lv := range leaves {
		if lv.Status == "approved" {
			data.Performance.OnLeave = true
		}
	}

	for _, r := range retailers {
		if r.PendingAmount > 0 {
			data.Urgent.PendingPayments = append(data.Urgent.PendingPayments, r)
		}
		if r.Priority {
			data.Urgent.PriorityRetailers = append(data.Urgent.PriorityRetailers, r)
		}
	}

	return data
}

// persist writes the recomputed blob plus the record collections that serve
// the cache-cold path of future loads. Write failures are logged, not
// raised; the cache is best effort.
func (l *Loader) persist(ctx context.Context, data *Data, visits []model.Visit, orders []model.Order, retailers []model.Retailer) {
	if err := l.store.Save(ctx, store.Dashboard, data.UserID, data); err != nil {
		l.config.Logger.Printf("WARNING: failed to persist dashboard cache: %v", err)
	}
	if err := l.store.SetFlag(ctx, "cache_warmed_at", l.now().Format(time.RFC3339)); err != nil {
		l.config.Logger.Printf("WARNING: failed to mark cache warm: %v", err)
	}

	if data.Today.BeatPlan != nil {
		l.saveRecord(ctx, store.BeatPlans, data.Today.BeatPlan.ID, data.Today.BeatPlan)
	}
	if data.Today.Attendance != nil {
		l.saveRecord(ctx, store.Attendance, data.Today.Attendance.ID, data.Today.Attendance)
	}
	for _, v := range visits {
		l.saveRecord(ctx, store.Visits, v.ID, v)
	}
	for _, o := range orders {
		l.saveRecord(ctx, store.Orders, o.ID, o)
	}
	for _, r := range retailers {
		l.saveRecord(ctx, store.Retailers, r.ID, r)
	}
}

func (l *Loader) saveRecord(ctx context.Context, collection, id string, value interface{}) {
	if id == "" {
		return
	}
	if err := l.store.Save(ctx, collection, id, value); err != nil {
		l.config.Logger.Printf("WARNING: failed to cache %s/%s: %v", collection, id, err)
	}
}

// ApplyVisitStatusChanged optimistically patches the cached blob when a visit
// completes with an order: revenue rises by the order value and one planned
// retailer moves from not-visited to productive, immediately, before any
// network round trip. The caller schedules a full refresh shortly after to
// reconcile.
func (l *Loader) ApplyVisitStatusChanged(ctx context.Context, userID string, ev events.VisitStatusChanged) (*Data, error) {
	data := l.Cached(ctx, userID)
	if data == nil {
		return nil, nil
	}

	data.Today.RevenueAchieved += ev.OrderValue
	data.Performance.TotalRevenue += ev.OrderValue
	data.Today.BeatProgress.Productive++
	if data.Today.BeatProgress.NotVisited > 0 {
		data.Today.BeatProgress.NotVisited--
	}
	data.Today.DailyProgressPct = DailyProgressPct(data.Today.BeatProgress)

	if err := l.store.Save(ctx, store.Dashboard, userID, data); err != nil {
		return nil, fmt.Errorf("failed to persist patched dashboard: %w", err)
	}
	return data, nil
}
