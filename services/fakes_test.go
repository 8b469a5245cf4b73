package services

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/paceline/paceline/models"
)

func TestMain(m *testing.M) {
	// cache invalidation reaches for the Redis singleton, which loads config
	os.Setenv("JWT_SECRET", "test-secret")
	os.Exit(m.Run())
}

// fakeClock pins "now" so rollover behavior is deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// memStore is an in-memory Store with transactional semantics: writes made
// through a UserTx apply only when fn returns nil, mirroring the rollback
// behavior of the MySQL store.
type memStore struct {
	mu      sync.Mutex
	users   map[uint]*models.User
	logs    map[uint]map[string]*models.DailyLog
	streaks map[uint]*models.StreakState
	shields map[uint]*models.ShieldInventory
	nextID  uint

	failSaveStreak bool
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[uint]*models.User{},
		logs:    map[uint]map[string]*models.DailyLog{},
		streaks: map[uint]*models.StreakState{},
		shields: map[uint]*models.ShieldInventory{},
		nextID:  1000,
	}
}

func (s *memStore) addUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *memStore) putLog(userID uint, log models.DailyLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logs[userID] == nil {
		s.logs[userID] = map[string]*models.DailyLog{}
	}
	if log.ID == 0 {
		s.nextID++
		log.ID = s.nextID
	}
	log.UserID = userID
	s.logs[userID][log.Date] = &log
}

func (s *memStore) getLog(userID uint, day string) *models.DailyLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[userID][day]; ok {
		c := *l
		return &c
	}
	return nil
}

func (s *memStore) getStreak(userID uint) models.StreakState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streaks[userID]; ok {
		return *st
	}
	return models.StreakState{UserID: userID}
}

func (s *memStore) getShields(userID uint) models.ShieldInventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.shields[userID]; ok {
		return *inv
	}
	return models.ShieldInventory{UserID: userID}
}

func (s *memStore) WithUser(ctx context.Context, userID uint, fn func(UserTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s, userID: userID, savedLogs: map[string]*models.DailyLog{}}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (s *memStore) ActiveUserIDs(ctx context.Context) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type memTx struct {
	store  *memStore
	userID uint

	savedUser    *models.User
	savedLogs    map[string]*models.DailyLog
	savedStreak  *models.StreakState
	savedShields *models.ShieldInventory
}

func (t *memTx) User() (*models.User, error) {
	if t.savedUser != nil {
		c := *t.savedUser
		return &c, nil
	}
	u, ok := t.store.users[t.userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	c := *u
	return &c, nil
}

func (t *memTx) SaveUser(u *models.User) error {
	c := *u
	t.savedUser = &c
	return nil
}

func (t *memTx) DailyLog(day string) (*models.DailyLog, error) {
	if l, ok := t.savedLogs[day]; ok {
		c := *l
		return &c, nil
	}
	if l, ok := t.store.logs[t.userID][day]; ok {
		c := *l
		return &c, nil
	}
	return nil, nil
}

func (t *memTx) DailyLogRange(from, to string) ([]models.DailyLog, error) {
	byDay := map[string]*models.DailyLog{}
	for day, l := range t.store.logs[t.userID] {
		byDay[day] = l
	}
	for day, l := range t.savedLogs {
		byDay[day] = l
	}
	var rows []models.DailyLog
	for day, l := range byDay {
		if day >= from && day <= to {
			rows = append(rows, *l)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows, nil
}

func (t *memTx) SaveDailyLog(row *models.DailyLog) error {
	if row.ID == 0 {
		t.store.nextID++
		row.ID = t.store.nextID
	}
	row.UserID = t.userID
	c := *row
	t.savedLogs[row.Date] = &c
	return nil
}

func (t *memTx) Streak() (*models.StreakState, error) {
	if t.savedStreak != nil {
		c := *t.savedStreak
		return &c, nil
	}
	if st, ok := t.store.streaks[t.userID]; ok {
		c := *st
		return &c, nil
	}
	return &models.StreakState{UserID: t.userID}, nil
}

func (t *memTx) SaveStreak(st *models.StreakState) error {
	if t.store.failSaveStreak {
		return errors.New("induced streak save failure")
	}
	if st.ID == 0 {
		t.store.nextID++
		st.ID = t.store.nextID
	}
	st.UserID = t.userID
	c := *st
	t.savedStreak = &c
	return nil
}

func (t *memTx) Shields() (*models.ShieldInventory, error) {
	if t.savedShields != nil {
		c := *t.savedShields
		return &c, nil
	}
	if inv, ok := t.store.shields[t.userID]; ok {
		c := *inv
		return &c, nil
	}
	return &models.ShieldInventory{UserID: t.userID}, nil
}

func (t *memTx) SaveShields(inv *models.ShieldInventory) error {
	if inv.ID == 0 {
		t.store.nextID++
		inv.ID = t.store.nextID
	}
	inv.UserID = t.userID
	c := *inv
	t.savedShields = &c
	return nil
}

func (t *memTx) apply() {
	if t.savedUser != nil {
		t.store.users[t.userID] = t.savedUser
	}
	if len(t.savedLogs) > 0 {
		if t.store.logs[t.userID] == nil {
			t.store.logs[t.userID] = map[string]*models.DailyLog{}
		}
		for day, l := range t.savedLogs {
			t.store.logs[t.userID][day] = l
		}
	}
	if t.savedStreak != nil {
		t.store.streaks[t.userID] = t.savedStreak
	}
	if t.savedShields != nil {
		t.store.shields[t.userID] = t.savedShields
	}
}

// fakeSource is a scriptable observation source.
type fakeSource struct {
	mu       sync.Mutex
	obs      map[uint]map[string][]StepObservation
	failDays map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		obs:      map[uint]map[string][]StepObservation{},
		failDays: map[string]bool{},
	}
}

func (f *fakeSource) set(userID uint, day string, obs ...StepObservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.obs[userID] == nil {
		f.obs[userID] = map[string][]StepObservation{}
	}
	f.obs[userID][day] = obs
}

func (f *fakeSource) Append(ctx context.Context, userID uint, batchID string, byDay map[string][]StepObservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.obs[userID] == nil {
		f.obs[userID] = map[string][]StepObservation{}
	}
	for day, obs := range byDay {
		f.obs[userID][day] = append(f.obs[userID][day], obs...)
	}
	return nil
}

func (f *fakeSource) FetchDay(ctx context.Context, userID uint, day string) ([]StepObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDays[day] {
		return nil, errors.New("upstream unavailable")
	}
	return append([]StepObservation(nil), f.obs[userID][day]...), nil
}

func (f *fakeSource) FetchRange(ctx context.Context, userID uint, from, to string) (map[string][]StepObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]StepObservation{}
	for day, obs := range f.obs[userID] {
		if day >= from && day <= to {
			out[day] = append([]StepObservation(nil), obs...)
		}
	}
	return out, nil
}

// fakeTiers returns fixed limits regardless of user.
type fakeTiers struct {
	limits TierLimits
}

func (f fakeTiers) TierFor(u *models.User) TierLimits { return f.limits }

// allowThrottle scripts throttle decisions.
type allowThrottle struct {
	allow bool
	calls int
}

func (a *allowThrottle) Acquire(key string, ttl time.Duration) bool {
	a.calls++
	return a.allow
}

const testUserID uint = 1

type testEngine struct {
	tracker     *Tracker
	store       *memStore
	source      *fakeSource
	clock       *fakeClock
	tiers       TierProvider
	shieldOrder ConsumeOrder
}

func newTestEngine(opts ...func(*testEngine)) *testEngine {
	e := &testEngine{
		store:       newMemStore(),
		source:      newFakeSource(),
		clock:       &fakeClock{now: time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)},
		tiers:       NewStaticTiers(),
		shieldOrder: PurchasedFirst,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.store.addUser(models.User{
		ID:         testUserID,
		Username:   "ana",
		Timezone:   "UTC",
		GoalTarget: 10000,
		Tier:       "free",
	})
	e.tracker = NewTracker(e.store, e.source, e.clock, e.tiers, EngineConfig{
		Precedence:  []string{"device_motion", "health_store", "cloud_sync"},
		ShieldOrder: e.shieldOrder,
	}, nil)
	return e
}

func withTiers(limits TierLimits) func(*testEngine) {
	return func(e *testEngine) { e.tiers = fakeTiers{limits: limits} }
}

func withShieldOrder(order ConsumeOrder) func(*testEngine) {
	return func(e *testEngine) { e.shieldOrder = order }
}

// ingestSteps pushes one device observation of steps for the given day's
// morning and returns any error from the live pipeline.
func (e *testEngine) ingestSteps(day string, steps int) error {
	start, _ := DayBounds(day, time.UTC)
	_, err := e.tracker.Ingest(context.Background(), testUserID, []StepObservation{{
		Provider: "device_motion",
		Start:    start.Add(8 * time.Hour),
		End:      start.Add(10 * time.Hour),
		Steps:    steps,
	}})
	return err
}
