package dashboard

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"dashboard/api/internal/bg"
	"dashboard/api/internal/util"
	"github.com/rs/zerolog"
)

// Remote is the engine's view of the configuration store.
type Remote interface {
	// Load returns found=false when nothing is stored for the session.
	Load(ctx context.Context, sessionID string) (raw json.RawMessage, found bool, err error)
	Save(ctx context.Context, sessionID string, doc Document) error
	SaveActiveTab(ctx context.Context, sessionID, tabID string, revision int64) error
}

type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
)

const defaultSaveTimeout = 10 * time.Second

type Options struct {
	SessionID   string
	Remote      Remote
	Catalog     Catalog
	Runner      bg.Runner
	Logger      zerolog.Logger
	SaveTimeout time.Duration
	// NewTabID overrides tab id generation, mainly for tests.
	NewTabID func() string
}

// Engine owns the in-memory dashboard document for one session. Mutations
// apply immediately and schedule a save of the full document; they never wait
// for it and never fail. Each persisted snapshot carries a revision one higher
// than the last so stores can discard writes that arrive out of order.
type Engine struct {
	mu          sync.Mutex
	sessionID   string
	remote      Remote
	catalog     Catalog
	runner      bg.Runner
	logger      zerolog.Logger
	saveTimeout time.Duration
	newTabID    func() string

	doc    Document
	status Status
	// loaded is set once a read of the store succeeded. Until then the
	// stored revision is unknown and nothing is written.
	loaded bool
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		sessionID:   opts.SessionID,
		remote:      opts.Remote,
		catalog:     opts.Catalog,
		runner:      opts.Runner,
		logger:      opts.Logger.With().Str("session_id", opts.SessionID).Logger(),
		saveTimeout: opts.SaveTimeout,
		newTabID:    opts.NewTabID,
		doc:         DefaultDocument(),
		status:      StatusLoading,
	}
	if e.catalog == nil {
		e.catalog = DefaultCatalog()
	}
	if e.runner == nil {
		e.runner = bg.Async{}
	}
	if e.saveTimeout <= 0 {
		e.saveTimeout = defaultSaveTimeout
	}
	if e.newTabID == nil {
		e.newTabID = func() string { return util.NewID("tab") }
	}
	return e
}

// Load fetches the stored document and adopts its normalized form. When the
// store was empty or held an older shape the result is written back at once.
// A failed read leaves the default document in place. Later edits then stay
// local to this engine, since saving them could overwrite a stored dashboard
// that was never read.
func (e *Engine) Load(ctx context.Context) {
	var (
		raw   json.RawMessage
		found bool
		err   error
	)
	if e.remote != nil {
		raw, found, err = e.remote.Load(ctx, e.sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusReady

	if err != nil {
		e.logger.Warn().Err(err).Msg("load dashboard failed, using default layout; changes stay local")
		e.doc = DefaultDocument()
		return
	}
	e.loaded = true
	if !found {
		raw = nil
	}

	doc, outcome := Normalize(raw)
	e.doc = doc
	if outcome.Changed() {
		e.logger.Info().
			Bool("created", outcome.Created).
			Bool("migrated", outcome.Migrated).
			Bool("repaired", outcome.Repaired).
			Msg("writing back normalized dashboard")
		e.commitLocked()
	}
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) SessionID() string {
	return e.sessionID
}

// Snapshot returns a deep copy of the current document.
func (e *Engine) Snapshot() Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone()
}

func (e *Engine) ActiveTab() Tab {
	e.mu.Lock()
	defer e.mu.Unlock()
	tab, _ := e.doc.ActiveTab()
	return tab.Clone()
}

// AddWidget places a new instance of widgetType at the bottom of the active
// tab and returns its id. A zero mode or explicit size means "not given".
// Types missing from the catalog are accepted with fallback sizing.
func (e *Engine) AddWidget(widgetType string, mode SizeMode, explicit Size) string {
	widgetType = strings.TrimSpace(widgetType)

	e.mu.Lock()
	defer e.mu.Unlock()

	tab := e.activeLocked()
	id := nextInstanceID(*tab, widgetType)
	size, minSize := e.resolveSize(widgetType, mode, explicit)
	if !mode.Valid() {
		mode = DefaultSizeMode
	}

	tab.WidgetInstances = append(tab.WidgetInstances, WidgetInstance{ID: id, Type: widgetType})
	tab.Layouts = append(tab.Layouts, LayoutEntry{
		I:        id,
		X:        0,
		Y:        tab.bottom(),
		W:        size.W,
		H:        size.H,
		MinW:     minSize.W,
		MinH:     minSize.H,
		SizeMode: mode,
	})
	if settings, ok := defaultSettings(widgetType); ok {
		tab.WidgetSettings[id] = settings
	}
	tab.EnabledWidgets = append(tab.EnabledWidgets, id)

	e.commitLocked()
	return id
}

// resolveSize picks the target and minimum footprint. Target: explicit size,
// catalog preset for mode, catalog default, fallback. Minimum: catalog preset
// minimum, catalog minimum, fallback. The target never undercuts the minimum.
func (e *Engine) resolveSize(widgetType string, mode SizeMode, explicit Size) (Size, Size) {
	entry, known := e.catalog.Lookup(widgetType)
	preset, hasPreset := SizePreset{}, false
	if known && mode.Valid() {
		preset, hasPreset = entry.Preset(mode)
	}

	size := fallbackSize
	switch {
	case !explicit.IsZero():
		size = explicit
	case hasPreset && !preset.Size.IsZero():
		size = preset.Size
	case known && !entry.Default.IsZero():
		size = entry.Default
	}

	minSize := fallbackMinSize
	switch {
	case hasPreset && !preset.Min.IsZero():
		minSize = preset.Min
	case known && !entry.Min.IsZero():
		minSize = entry.Min
	}

	size.W = max(size.W, minSize.W)
	size.H = max(size.H, minSize.H)
	return size, minSize
}

// RemoveWidget drops the instance, its layout entry and its enabled flag.
// Its settings stay behind.
func (e *Engine) RemoveWidget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tab := e.activeLocked()
	if _, ok := tab.Instance(id); !ok {
		if _, ok := tab.Layout(id); !ok && !tab.IsEnabled(id) {
			return
		}
	}
	tab.WidgetInstances = filter(tab.WidgetInstances, func(w WidgetInstance) bool { return w.ID != id })
	tab.Layouts = filter(tab.Layouts, func(l LayoutEntry) bool { return l.I != id })
	tab.EnabledWidgets = filter(tab.EnabledWidgets, func(enabled string) bool { return enabled != id })
	e.commitLocked()
}

// ToggleWidget shows or hides an existing instance without touching its
// layout or settings. Ids without an instance cannot be enabled.
func (e *Engine) ToggleWidget(id string, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tab := e.activeLocked()
	if tab.IsEnabled(id) == enabled {
		return
	}
	if !enabled {
		tab.EnabledWidgets = filter(tab.EnabledWidgets, func(v string) bool { return v != id })
		e.commitLocked()
		return
	}

	if _, ok := tab.Instance(id); !ok {
		return
	}
	if _, ok := tab.Layout(id); !ok {
		tab.Layouts = append(tab.Layouts, LayoutEntry{
			I: id, Y: tab.bottom(),
			W: fallbackSize.W, H: fallbackSize.H,
			MinW: fallbackMinSize.W, MinH: fallbackMinSize.H,
			SizeMode: DefaultSizeMode,
		})
	}
	tab.EnabledWidgets = append(tab.EnabledWidgets, id)
	e.commitLocked()
}

// UpdateWidgetSettings replaces the settings for id in the active tab.
// Callers merge with the previous value themselves.
func (e *Engine) UpdateWidgetSettings(id string, settings Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tab := e.activeLocked()
	tab.WidgetSettings[id] = settings.Clone()
	e.commitLocked()
}

// UpdateLayouts replaces the active tab's layout entries with the geometry
// reported by the grid. Entries for unknown instances are ignored. Instances
// the grid did not report (hidden ones, typically) keep their previous entry,
// and cached minimums and size modes carry over when the grid omits them.
func (e *Engine) UpdateLayouts(layouts []LayoutEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tab := e.activeLocked()
	previous := make(map[string]LayoutEntry, len(tab.Layouts))
	for _, entry := range tab.Layouts {
		previous[entry.I] = entry
	}

	n := &normalizer{}
	next := make([]LayoutEntry, 0, len(layouts))
	seen := map[string]struct{}{}
	for _, entry := range layouts {
		if _, ok := tab.Instance(entry.I); !ok {
			continue
		}
		if _, dup := seen[entry.I]; dup {
			continue
		}
		seen[entry.I] = struct{}{}
		if old, ok := previous[entry.I]; ok {
			if entry.MinW == 0 && entry.MinH == 0 {
				entry.MinW, entry.MinH = old.MinW, old.MinH
			}
			if entry.SizeMode == "" {
				entry.SizeMode = old.SizeMode
			}
		}
		next = append(next, n.repairEntry(entry))
	}
	for _, instance := range tab.WidgetInstances {
		if _, ok := seen[instance.ID]; ok {
			continue
		}
		if old, ok := previous[instance.ID]; ok {
			next = append(next, old)
		}
	}

	tab.Layouts = next
	e.commitLocked()
}

// AddTab appends an empty workspace, activates it and returns its id.
func (e *Engine) AddTab(name string, icon string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Tab " + strconv.Itoa(len(e.doc.Tabs)+1)
	}
	id := e.newTabID()
	for id == "" || e.doc.TabIndex(id) >= 0 {
		id = util.NewID("tab")
	}

	e.doc.Tabs = append(e.doc.Tabs, NewTab(id, name, ParseIcon(icon)))
	e.doc.ActiveTabID = id
	e.commitLocked()
	return id
}

// RenameTab is a no-op for unknown ids and blank names.
func (e *Engine) RenameTab(id, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name = strings.TrimSpace(name)
	idx := e.doc.TabIndex(id)
	if idx < 0 || name == "" || e.doc.Tabs[idx].Name == name {
		return
	}
	e.doc.Tabs[idx].Name = name
	e.commitLocked()
}

// DeleteTab refuses to remove the last workspace. Deleting the active one
// activates the first remaining tab.
func (e *Engine) DeleteTab(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.doc.TabIndex(id)
	if idx < 0 || len(e.doc.Tabs) <= 1 {
		return
	}
	e.doc.Tabs = append(e.doc.Tabs[:idx], e.doc.Tabs[idx+1:]...)
	if e.doc.ActiveTabID == id {
		e.doc.ActiveTabID = e.doc.Tabs[0].ID
	}
	e.commitLocked()
}

// SwitchTab changes the active workspace. Only the new selection is sent to
// the store, not the whole document.
func (e *Engine) SwitchTab(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc.TabIndex(id) < 0 || e.doc.ActiveTabID == id {
		return
	}
	e.doc.ActiveTabID = id
	e.doc.Revision++
	if !e.persistentLocked() {
		return
	}
	revision := e.doc.Revision
	e.runner.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.saveTimeout)
		defer cancel()
		if err := e.remote.SaveActiveTab(ctx, e.sessionID, id, revision); err != nil {
			e.logger.Warn().Err(err).Str("tab_id", id).Int64("revision", revision).Msg("save active tab failed")
		}
	})
}

// activeLocked returns a pointer into the document for the active tab,
// repointing activeTabId if it dangles.
func (e *Engine) activeLocked() *Tab {
	idx := e.doc.TabIndex(e.doc.ActiveTabID)
	if idx < 0 {
		if len(e.doc.Tabs) == 0 {
			e.doc.Tabs = []Tab{NewTab(DefaultTabID, DefaultTabName, DefaultIcon)}
		}
		idx = 0
		e.doc.ActiveTabID = e.doc.Tabs[0].ID
	}
	tab := &e.doc.Tabs[idx]
	if tab.WidgetSettings == nil {
		tab.WidgetSettings = map[string]Settings{}
	}
	return tab
}

// commitLocked bumps the revision and schedules a save of the full document
// as it is now. Failures are logged and otherwise dropped.
func (e *Engine) commitLocked() {
	e.doc.Revision++
	if !e.persistentLocked() {
		return
	}
	snapshot := e.doc.Clone()
	e.runner.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.saveTimeout)
		defer cancel()
		if err := e.remote.Save(ctx, e.sessionID, snapshot); err != nil {
			e.logger.Warn().Err(err).Int64("revision", snapshot.Revision).Msg("save dashboard failed")
		}
	})
}

func (e *Engine) persistentLocked() bool {
	if e.remote == nil {
		return false
	}
	if !e.loaded {
		e.logger.Debug().Int64("revision", e.doc.Revision).Msg("dashboard not loaded, keeping change local")
		return false
	}
	return true
}

// nextInstanceID returns <type>-<n> for the smallest positive n not used by
// any instance, layout entry or enabled id in the tab.
func nextInstanceID(tab Tab, widgetType string) string {
	used := map[string]struct{}{}
	for _, instance := range tab.WidgetInstances {
		used[instance.ID] = struct{}{}
	}
	for _, entry := range tab.Layouts {
		used[entry.I] = struct{}{}
	}
	for _, id := range tab.EnabledWidgets {
		used[id] = struct{}{}
	}
	for n := 1; ; n++ {
		candidate := widgetType + "-" + strconv.Itoa(n)
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
