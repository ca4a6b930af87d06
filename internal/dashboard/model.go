// Package dashboard holds the canonical dashboard document (workspaces, widget
// instances, grid layout and per-widget settings), the normalizer that upgrades
// stored documents of any vintage, and the engine that mutates and persists it.
package dashboard

import (
	"slices"
	"strings"
)

const (
	DefaultTabID   = "default"
	DefaultTabName = "Home"
)

// SizeMode is a widget's size preset on the grid.
type SizeMode string

const (
	SizeCompact  SizeMode = "compact"
	SizeStandard SizeMode = "standard"
	SizeExpanded SizeMode = "expanded"

	DefaultSizeMode = SizeStandard
)

func (m SizeMode) Valid() bool {
	switch m {
	case SizeCompact, SizeStandard, SizeExpanded:
		return true
	}
	return false
}

// Icon names the symbol shown on a workspace tab.
type Icon string

const (
	IconHome   Icon = "home"
	IconWork   Icon = "work"
	IconStar   Icon = "star"
	IconHeart  Icon = "heart"
	IconCode   Icon = "code"
	IconMusic  Icon = "music"
	IconBook   Icon = "book"
	IconGlobe  Icon = "globe"
	IconChart  Icon = "chart"
	IconCoffee Icon = "coffee"

	DefaultIcon = IconHome
)

var icons = []Icon{IconHome, IconWork, IconStar, IconHeart, IconCode, IconMusic, IconBook, IconGlobe, IconChart, IconCoffee}

// Icons lists the accepted workspace icons.
func Icons() []Icon {
	return append([]Icon(nil), icons...)
}

// ParseIcon maps unrecognized values to DefaultIcon.
func ParseIcon(value string) Icon {
	icon := Icon(strings.ToLower(strings.TrimSpace(value)))
	if slices.Contains(icons, icon) {
		return icon
	}
	return DefaultIcon
}

// Size is a widget footprint in grid cells.
type Size struct {
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

func (s Size) IsZero() bool {
	return s.W <= 0 || s.H <= 0
}

// WidgetInstance is one placed widget of a catalog type.
type WidgetInstance struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// LayoutEntry is the grid position of one instance, keyed by I.
type LayoutEntry struct {
	I        string   `json:"i"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
	W        int      `json:"w"`
	H        int      `json:"h"`
	MinW     int      `json:"minW,omitempty"`
	MinH     int      `json:"minH,omitempty"`
	SizeMode SizeMode `json:"sizeMode,omitempty"`
}

// Tab is a workspace with its own widgets, layout and settings.
type Tab struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Icon            Icon                `json:"icon"`
	Layouts         []LayoutEntry       `json:"layouts"`
	EnabledWidgets  []string            `json:"enabledWidgets"`
	WidgetInstances []WidgetInstance    `json:"widgetInstances"`
	WidgetSettings  map[string]Settings `json:"widgetSettings"`
}

// Document is the full configuration for one session. The deprecated top-level
// mirror fields are not stored here; MarshalJSON derives them from the active
// tab.
type Document struct {
	Tabs        []Tab
	ActiveTabID string
	Revision    int64
}

// NewTab returns an empty workspace with non-nil collections.
func NewTab(id, name string, icon Icon) Tab {
	return Tab{
		ID:              id,
		Name:            name,
		Icon:            icon,
		Layouts:         []LayoutEntry{},
		EnabledWidgets:  []string{},
		WidgetInstances: []WidgetInstance{},
		WidgetSettings:  map[string]Settings{},
	}
}

// DefaultDocument is a single empty Home workspace at revision 0.
func DefaultDocument() Document {
	return Document{
		Tabs:        []Tab{NewTab(DefaultTabID, DefaultTabName, DefaultIcon)},
		ActiveTabID: DefaultTabID,
	}
}

// TabIndex returns -1 when no tab has the given id.
func (d Document) TabIndex(id string) int {
	for i := range d.Tabs {
		if d.Tabs[i].ID == id {
			return i
		}
	}
	return -1
}

// ActiveTab returns the active workspace, or the first one if activeTabId
// dangles.
func (d Document) ActiveTab() (Tab, bool) {
	if len(d.Tabs) == 0 {
		return Tab{}, false
	}
	if idx := d.TabIndex(d.ActiveTabID); idx >= 0 {
		return d.Tabs[idx], true
	}
	return d.Tabs[0], true
}

func (d Document) Clone() Document {
	out := Document{ActiveTabID: d.ActiveTabID, Revision: d.Revision, Tabs: make([]Tab, len(d.Tabs))}
	for i := range d.Tabs {
		out.Tabs[i] = d.Tabs[i].Clone()
	}
	return out
}

func (t Tab) Clone() Tab {
	out := Tab{ID: t.ID, Name: t.Name, Icon: t.Icon}
	out.Layouts = append([]LayoutEntry{}, t.Layouts...)
	out.EnabledWidgets = append([]string{}, t.EnabledWidgets...)
	out.WidgetInstances = append([]WidgetInstance{}, t.WidgetInstances...)
	out.WidgetSettings = make(map[string]Settings, len(t.WidgetSettings))
	for id, settings := range t.WidgetSettings {
		out.WidgetSettings[id] = settings.Clone()
	}
	return out
}

func (t Tab) IsEnabled(id string) bool {
	for _, enabled := range t.EnabledWidgets {
		if enabled == id {
			return true
		}
	}
	return false
}

func (t Tab) Instance(id string) (WidgetInstance, bool) {
	for _, instance := range t.WidgetInstances {
		if instance.ID == id {
			return instance, true
		}
	}
	return WidgetInstance{}, false
}

func (t Tab) Layout(id string) (LayoutEntry, bool) {
	for _, entry := range t.Layouts {
		if entry.I == id {
			return entry, true
		}
	}
	return LayoutEntry{}, false
}

// bottom returns the first free row below every layout entry.
func (t Tab) bottom() int {
	y := 0
	for _, entry := range t.Layouts {
		if next := entry.Y + entry.H; next > y {
			y = next
		}
	}
	return y
}
