package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"dashboard/api/internal/dashboard"
	"dashboard/api/internal/store"
	"github.com/rs/zerolog"
)

// memStore applies the same revision guard as the real backends.
type memStore struct {
	mu      sync.Mutex
	records map[string]store.ConfigRecord
}

func newMemStore() *memStore {
	return &memStore{records: map[string]store.ConfigRecord{}}
}

func (m *memStore) GetConfig(_ context.Context, sessionID string) (store.ConfigRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[sessionID]
	if !ok {
		return store.ConfigRecord{}, store.ErrNotFound
	}
	return record, nil
}

func (m *memStore) PutConfig(_ context.Context, record store.ConfigRecord) (store.ConfigRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.records[record.SessionID]; ok && record.Revision < current.Revision {
		return store.ConfigRecord{}, store.ErrStaleRevision
	}
	m.records[record.SessionID] = record
	return record, nil
}

func (m *memStore) DeleteConfig(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }

// serviceRemote lets an engine talk to a Service without HTTP in between.
type serviceRemote struct {
	svc *Service
}

func (r serviceRemote) Load(ctx context.Context, sessionID string) (json.RawMessage, bool, error) {
	record, err := r.svc.GetConfig(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return record.Document, true, nil
}

func (r serviceRemote) Save(ctx context.Context, sessionID string, doc dashboard.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = r.svc.PutConfig(ctx, sessionID, raw)
	return err
}

func (r serviceRemote) SaveActiveTab(ctx context.Context, sessionID, tabID string, revision int64) error {
	_, err := r.svc.SetActiveTab(ctx, sessionID, tabID, revision)
	return err
}

// queueRunner holds scheduled writes so a test can deliver them in any order.
type queueRunner struct {
	pending []func()
}

func (q *queueRunner) Do(fn func()) {
	q.pending = append(q.pending, fn)
}

func (q *queueRunner) flush() {
	pending := q.pending
	q.pending = nil
	for _, fn := range pending {
		fn()
	}
}

func (q *queueRunner) flushReversed() {
	pending := q.pending
	q.pending = nil
	for i := len(pending) - 1; i >= 0; i-- {
		pending[i]()
	}
}

func newOrderingEngine(t *testing.T, revision int64) (*dashboard.Engine, *memStore, *queueRunner) {
	t.Helper()
	ms := newMemStore()
	ms.records["sess"] = storedRecord(t, twoTabDocument(revision))
	runner := &queueRunner{}
	engine := dashboard.NewEngine(dashboard.Options{
		SessionID: "sess",
		Remote:    serviceRemote{svc: New(ms, zerolog.Nop())},
		Runner:    runner,
		Logger:    zerolog.Nop(),
	})
	engine.Load(context.Background())
	runner.flush()
	return engine, ms, runner
}

func storedDocument(t *testing.T, ms *memStore) (dashboard.Document, int64) {
	t.Helper()
	record, err := ms.GetConfig(context.Background(), "sess")
	if err != nil {
		t.Fatalf("read stored config: %v", err)
	}
	doc, _ := dashboard.Normalize(record.Document)
	return doc, record.Revision
}

func hasInstance(doc dashboard.Document, tabID, instanceID string) bool {
	idx := doc.TabIndex(tabID)
	if idx < 0 {
		return false
	}
	_, ok := doc.Tabs[idx].Instance(instanceID)
	return ok
}

func TestTabSwitchDeliveredBeforeEarlierSaveKeepsEdit(t *testing.T) {
	engine, ms, runner := newOrderingEngine(t, 5)
	base := engine.Snapshot().Revision

	id := engine.AddWidget("clock", "", dashboard.Size{})
	engine.SwitchTab("work")
	if len(runner.pending) != 2 {
		t.Fatalf("expected a full save and a tab switch queued, got %d", len(runner.pending))
	}
	runner.flushReversed()

	doc, revision := storedDocument(t, ms)
	if !hasInstance(doc, dashboard.DefaultTabID, id) {
		t.Fatalf("stored document lost %s added before the tab switch", id)
	}
	if revision != base+1 {
		t.Errorf("expected the full save at revision %d to be stored, got %d", base+1, revision)
	}

	// The next full save carries the engine's selection again.
	engine.AddWidget("weather", "", dashboard.Size{})
	runner.flush()
	doc, revision = storedDocument(t, ms)
	if revision != engine.Snapshot().Revision {
		t.Errorf("expected stored revision %d, got %d", engine.Snapshot().Revision, revision)
	}
	if doc.ActiveTabID != "work" || !hasInstance(doc, dashboard.DefaultTabID, id) {
		t.Errorf("expected work active with %s kept, got active %q", id, doc.ActiveTabID)
	}
}

func TestTabSwitchDeliveredInOrder(t *testing.T) {
	engine, ms, runner := newOrderingEngine(t, 5)
	base := engine.Snapshot().Revision

	id := engine.AddWidget("clock", "", dashboard.Size{})
	engine.SwitchTab("work")
	runner.flush()

	doc, revision := storedDocument(t, ms)
	if doc.ActiveTabID != "work" || !hasInstance(doc, dashboard.DefaultTabID, id) {
		t.Fatalf("expected work active with %s stored, got active %q", id, doc.ActiveTabID)
	}
	if revision != base+1 {
		t.Errorf("expected the tab switch to keep revision %d, got %d", base+1, revision)
	}
}

func TestFullSavesDeliveredOutOfOrder(t *testing.T) {
	engine, ms, runner := newOrderingEngine(t, 5)
	base := engine.Snapshot().Revision

	first := engine.AddWidget("clock", "", dashboard.Size{})
	second := engine.AddWidget("weather", "", dashboard.Size{})
	runner.flushReversed()

	doc, revision := storedDocument(t, ms)
	if revision != base+2 {
		t.Fatalf("expected the newest save at revision %d, got %d", base+2, revision)
	}
	if !hasInstance(doc, dashboard.DefaultTabID, first) || !hasInstance(doc, dashboard.DefaultTabID, second) {
		t.Errorf("expected %s and %s stored, got %+v", first, second, doc.Tabs[0].WidgetInstances)
	}
}
