package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobdeck/internal/model"
	"jobdeck/internal/notifier"
)

type fakeRemote struct {
	mu         sync.Mutex
	listResult []model.Job
	listErr    error
	listCalls  int
	listGate   chan struct{}

	createErr error
	createSeq int

	updateErr    error
	updateResult *model.Job

	deleteErr error

	analytics      model.Analytics
	analyticsErr   error
	analyticsCalls atomic.Int32
}

func (f *fakeRemote) ListJobs(ctx context.Context) ([]model.Job, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	result := append([]model.Job(nil), f.listResult...)
	err := f.listErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *fakeRemote) CreateJob(_ context.Context, draft model.Job) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.Job{}, f.createErr
	}
	f.createSeq++
	draft.ID = fmt.Sprintf("srv-%d", f.createSeq)
	draft.CreatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	draft.UpdatedAt = draft.CreatedAt
	return draft, nil
}

func (f *fakeRemote) UpdateJob(_ context.Context, id string, record model.Job) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return model.Job{}, f.updateErr
	}
	if f.updateResult != nil {
		return *f.updateResult, nil
	}
	record.ID = id
	record.UpdatedAt = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	return record, nil
}

func (f *fakeRemote) DeleteJob(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeRemote) Analytics(_ context.Context) (model.Analytics, error) {
	f.analyticsCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.analyticsErr != nil {
		return model.Analytics{}, f.analyticsErr
	}
	return f.analytics, nil
}

// fakeCache 用内存 map 模拟离线缓存。
type fakeCache struct {
	mu      sync.Mutex
	jobs    map[string][]model.Job
	snaps   map[string]*model.Analytics
	deletes []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{jobs: make(map[string][]model.Job), snaps: make(map[string]*model.Analytics)}
}

func (f *fakeCache) SaveJobCache(_ context.Context, userID string, jobs []model.Job, snapshot *model.Analytics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[userID] = append([]model.Job(nil), jobs...)
	f.snaps[userID] = snapshot
	return nil
}

func (f *fakeCache) LoadJobCache(_ context.Context, userID string) ([]model.Job, *model.Analytics, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs, ok := f.jobs[userID]
	if !ok {
		return nil, nil, false, nil
	}
	return append([]model.Job(nil), jobs...), f.snaps[userID], true, nil
}

func (f *fakeCache) DeleteJobCache(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, userID)
	delete(f.snaps, userID)
	f.deletes = append(f.deletes, userID)
	return nil
}

func draftJob(company, position string) model.Job {
	return model.Job{
		Company:  company,
		Position: position,
		Status:   model.StatusWishlist,
		JobType:  model.JobTypeFullTime,
		Priority: model.PriorityMedium,
	}
}

func signIn(store *Store, userID string) {
	store.HandleEvent(notifier.Event{Kind: notifier.EventIdentityChanged, UserID: userID})
}

func signOut(store *Store) {
	store.HandleEvent(notifier.Event{Kind: notifier.EventIdentityChanged})
}

// waitRefreshIdle 等待后台刷新协程退出。
func waitRefreshIdle(t *testing.T, store *Store) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.refreshMu.Lock()
		idle := !store.refreshActive && !store.refreshDirty
		store.refreshMu.Unlock()
		if idle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("background refresh did not settle")
}

func TestOperationsRequireSession(t *testing.T) {
	t.Parallel()

	store := NewStore(&fakeRemote{}, nil, nil, Config{}, nil)
	ctx := context.Background()

	if _, err := store.List(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession from List, got %v", err)
	}
	if _, err := store.Create(ctx, draftJob("Acme", "Engineer")); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession from Create, got %v", err)
	}
	if err := store.Delete(ctx, "j1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession from Delete, got %v", err)
	}
}

func TestSignInLoadsJobsAndAnalytics(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{
			{ID: "j1", Company: "Acme", Position: "Engineer", Status: model.StatusApplied},
		},
		analytics: model.Analytics{Total: 1, ByStatus: map[model.Status]int{model.StatusApplied: 1}},
	}
	store := NewStore(remote, nil, nil, Config{}, nil)

	signIn(store, "u1")

	jobs := store.Jobs()
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Fatalf("unexpected collection after sign-in: %+v", jobs)
	}
	snapshot, ok := store.Analytics()
	if !ok || snapshot.Total != 1 {
		t.Fatalf("expected snapshot loaded, got ok=%v %+v", ok, snapshot)
	}
	if remote.listCalls != 1 {
		t.Fatalf("expected exactly one list call, got %d", remote.listCalls)
	}
	if got := remote.analyticsCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one analytics call, got %d", got)
	}
}

func TestListIdempotentWithoutMutations(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{
			{ID: "j1", Company: "Acme", Position: "Engineer"},
			{ID: "j2", Company: "Globex", Position: "Designer"},
		},
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")

	first, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("first List error: %v", err)
	}
	second, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("second List error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical collections, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("expected same order, diverged at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestListFailureKeepsPreviousCollection(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{{ID: "j1", Company: "Acme", Position: "Engineer"}},
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")

	remote.mu.Lock()
	remote.listErr = errors.New("backend down")
	remote.mu.Unlock()

	if _, err := store.List(context.Background()); err == nil {
		t.Fatal("expected List error")
	}
	if jobs := store.Jobs(); len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Fatalf("expected previous collection intact, got %+v", jobs)
	}
}

func TestCreatePrependsAndRefreshesExactlyOnce(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{{ID: "j1", Company: "Globex", Position: "Designer", Status: model.StatusApplied}},
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")
	baseline := remote.analyticsCalls.Load()

	created, err := store.Create(context.Background(), draftJob("Acme", "Engineer"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-assigned id on returned record")
	}

	jobs := store.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected collection length 2, got %d", len(jobs))
	}
	if jobs[0].ID != created.ID {
		t.Fatalf("expected new record first, got %s", jobs[0].ID)
	}
	if jobs[1].ID != "j1" {
		t.Fatalf("expected prior record preserved, got %s", jobs[1].ID)
	}

	waitRefreshIdle(t, store)
	if got := remote.analyticsCalls.Load() - baseline; got != 1 {
		t.Fatalf("expected exactly one analytics refresh after create, got %d", got)
	}
}

func TestCreateRejectsInvalidDraftBeforeNetwork(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")

	draft := draftJob("Acme", "Engineer")
	draft.Status = "Ghosted"
	if _, err := store.Create(context.Background(), draft); err == nil {
		t.Fatal("expected validation error for unknown status")
	}

	draft = draftJob("", "Engineer")
	if _, err := store.Create(context.Background(), draft); err == nil {
		t.Fatal("expected validation error for empty company")
	}
	if remote.createSeq != 0 {
		t.Fatalf("expected no create calls, got %d", remote.createSeq)
	}
}

func TestCreateFailureLeavesCollectionUnchanged(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{{ID: "j1", Company: "Acme", Position: "Engineer"}},
		createErr:  errors.New("validation failed"),
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")
	baseline := remote.analyticsCalls.Load()

	if _, err := store.Create(context.Background(), draftJob("Globex", "Designer")); err == nil {
		t.Fatal("expected create error")
	}
	if jobs := store.Jobs(); len(jobs) != 1 {
		t.Fatalf("expected collection unchanged, got %+v", jobs)
	}
	waitRefreshIdle(t, store)
	if got := remote.analyticsCalls.Load() - baseline; got != 0 {
		t.Fatalf("expected no analytics refresh after failed create, got %d", got)
	}
}

func TestUpdateReplacesInPlaceWithServerRecord(t *testing.T) {
	t.Parallel()

	serverRecord := model.Job{
		ID:       "j2",
		Company:  "Globex",
		Position: "Senior Designer",
		Status:   model.StatusInterview,
		JobType:  model.JobTypeFullTime,
		Priority: model.PriorityHigh,
		Notes:    "server-side note",
	}
	remote := &fakeRemote{
		listResult: []model.Job{
			{ID: "j1", Company: "Acme", Position: "Engineer"},
			{ID: "j2", Company: "Globex", Position: "Designer"},
			{ID: "j3", Company: "Initech", Position: "Analyst"},
		},
		updateResult: &serverRecord,
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")

	record := draftJob("Globex", "Senior Designer")
	record.ID = "j2"
	record.Status = model.StatusInterview

	updated, err := store.Update(context.Background(), "j2", record)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Notes != "server-side note" {
		t.Fatal("expected the server response returned, not a client-side merge")
	}

	jobs := store.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(jobs))
	}
	if jobs[0].ID != "j1" || jobs[1].ID != "j2" || jobs[2].ID != "j3" {
		t.Fatalf("expected original order preserved, got %s %s %s", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
	if jobs[1].Notes != "server-side note" || jobs[1].Position != "Senior Designer" {
		t.Fatalf("expected local entry replaced by server record, got %+v", jobs[1])
	}
	waitRefreshIdle(t, store)
}

func TestDeleteRemovesOnlyMatchingEntry(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{
			{ID: "j1", Company: "Acme", Position: "Engineer"},
			{ID: "j2", Company: "Globex", Position: "Designer"},
		},
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")

	if err := store.Delete(context.Background(), "j1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	jobs := store.Jobs()
	if len(jobs) != 1 || jobs[0].ID != "j2" {
		t.Fatalf("expected only j2 left, got %+v", jobs)
	}
	waitRefreshIdle(t, store)
}

func TestDeleteFailureNoRemovalNoRefresh(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{{ID: "j1", Company: "Acme", Position: "Engineer"}},
		deleteErr:  errors.New("job not found"),
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")
	baseline := remote.analyticsCalls.Load()

	if err := store.Delete(context.Background(), "missing"); err == nil {
		t.Fatal("expected delete error")
	}
	if jobs := store.Jobs(); len(jobs) != 1 {
		t.Fatalf("expected collection unchanged, got %+v", jobs)
	}
	waitRefreshIdle(t, store)
	if got := remote.analyticsCalls.Load() - baseline; got != 0 {
		t.Fatalf("expected no analytics refresh after failed delete, got %d", got)
	}
}

func TestAnalyticsFailureNeverFailsMutation(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{analyticsErr: errors.New("analytics down")}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")

	created, err := store.Create(context.Background(), draftJob("Acme", "Engineer"))
	if err != nil {
		t.Fatalf("Create must succeed despite analytics failure, got %v", err)
	}
	jobs := store.Jobs()
	if len(jobs) != 1 || jobs[0].ID != created.ID {
		t.Fatalf("expected created record applied, got %+v", jobs)
	}
	waitRefreshIdle(t, store)
	if _, ok := store.Analytics(); ok {
		t.Fatal("expected no snapshot while analytics endpoint fails")
	}
}

func TestSignOutDiscardsStateAndCache(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	remote := &fakeRemote{
		listResult: []model.Job{{ID: "j1", Company: "Acme", Position: "Engineer"}},
		analytics:  model.Analytics{Total: 1},
	}
	store := NewStore(remote, cache, nil, Config{}, nil)
	signIn(store, "u1")
	waitRefreshIdle(t, store)

	signOut(store)

	if jobs := store.Jobs(); len(jobs) != 0 {
		t.Fatalf("expected empty collection after sign-out, got %+v", jobs)
	}
	if _, ok := store.Analytics(); ok {
		t.Fatal("expected snapshot discarded after sign-out")
	}
	cache.mu.Lock()
	_, cached := cache.jobs["u1"]
	cache.mu.Unlock()
	if cached {
		t.Fatal("expected offline cache cleared on sign-out")
	}
}

func TestNextUserNeverSeesPreviousRecords(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{{ID: "j1", Company: "Acme", Position: "Engineer"}},
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")
	signOut(store)

	remote.mu.Lock()
	remote.listResult = []model.Job{{ID: "x9", Company: "Initech", Position: "Analyst"}}
	remote.mu.Unlock()

	signIn(store, "u2")
	jobs := store.Jobs()
	if len(jobs) != 1 || jobs[0].ID != "x9" {
		t.Fatalf("expected only the second user's records, got %+v", jobs)
	}
}

func TestLateListResponseDiscardedAfterSignOut(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	remote := &fakeRemote{
		listResult: []model.Job{{ID: "stale", Company: "Acme", Position: "Engineer"}},
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")

	remote.mu.Lock()
	remote.listGate = gate
	remote.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := store.List(context.Background())
		done <- err
	}()

	// Give the in-flight request time to pass the generation capture.
	time.Sleep(10 * time.Millisecond)
	signOut(store)
	close(gate)

	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionChanged) {
			t.Fatalf("expected ErrSessionChanged, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight List did not return")
	}
	if jobs := store.Jobs(); len(jobs) != 0 {
		t.Fatalf("late response must not resurrect state, got %+v", jobs)
	}
}

func TestCacheWarmsBeforeFirstFetch(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	cache.jobs["u1"] = []model.Job{{ID: "cached", Company: "Acme", Position: "Engineer"}}
	cache.snaps["u1"] = &model.Analytics{Total: 1}

	gate := make(chan struct{})
	remote := &fakeRemote{
		listResult: []model.Job{{ID: "fresh", Company: "Acme", Position: "Engineer"}},
		listGate:   gate,
	}
	hub := notifier.NewHub()
	var sawCached atomic.Bool
	store := NewStore(remote, cache, hub, Config{}, nil)
	hub.Subscribe(func(e notifier.Event) {
		if e.Kind != notifier.EventJobsChanged {
			return
		}
		jobs := store.Jobs()
		if len(jobs) == 1 && jobs[0].ID == "cached" {
			sawCached.Store(true)
		}
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	signIn(store, "u1")

	if !sawCached.Load() {
		t.Fatal("expected cached collection visible before the first fetch completed")
	}
	jobs := store.Jobs()
	if len(jobs) != 1 || jobs[0].ID != "fresh" {
		t.Fatalf("expected server result to replace cache wholesale, got %+v", jobs)
	}
}

func TestFilterByStatusAndTerm(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		listResult: []model.Job{
			{ID: "j1", Company: "Acme Corp", Position: "Go Engineer", Status: model.StatusApplied},
			{ID: "j2", Company: "Globex", Position: "Designer", Status: model.StatusApplied},
			{ID: "j3", Company: "acme labs", Position: "Analyst", Status: model.StatusWishlist},
		},
	}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")

	applied := store.Filter(model.StatusApplied, "")
	if len(applied) != 2 {
		t.Fatalf("expected 2 applied records, got %d", len(applied))
	}

	acmeApplied := store.Filter(model.StatusApplied, "ACME")
	if len(acmeApplied) != 1 || acmeApplied[0].ID != "j1" {
		t.Fatalf("expected case-insensitive company match, got %+v", acmeApplied)
	}

	byPosition := store.Filter("", "analyst")
	if len(byPosition) != 1 || byPosition[0].ID != "j3" {
		t.Fatalf("expected position match across statuses, got %+v", byPosition)
	}
}

func TestRapidMutationsCoalesceRefreshes(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	store := NewStore(remote, nil, nil, Config{}, nil)
	signIn(store, "u1")
	baseline := remote.analyticsCalls.Load()

	for i := 0; i < 5; i++ {
		if _, err := store.Create(context.Background(), draftJob("Acme", fmt.Sprintf("Role %d", i))); err != nil {
			t.Fatalf("Create %d error: %v", i, err)
		}
	}
	waitRefreshIdle(t, store)

	got := remote.analyticsCalls.Load() - baseline
	if got < 1 || got > 5 {
		t.Fatalf("expected between 1 and 5 coalesced refreshes, got %d", got)
	}
	if jobs := store.Jobs(); len(jobs) != 5 {
		t.Fatalf("expected 5 records, got %d", len(jobs))
	}
}
