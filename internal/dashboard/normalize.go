package dashboard

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	fallbackSize    = Size{W: 4, H: 3}
	fallbackMinSize = Size{W: 2, H: 2}

	instanceSuffix = regexp.MustCompile(`^(.+)-(\d+)$`)
)

// Outcome reports what Normalize had to do to produce a current-shape
// document. Any true field means storage no longer matches the returned
// document and should be rewritten.
type Outcome struct {
	Created  bool
	Migrated bool
	Repaired bool
}

func (o Outcome) Changed() bool {
	return o.Created || o.Migrated || o.Repaired
}

// Normalize turns a stored document of any vintage into a current-shape
// Document. It never fails: absent input yields the default document,
// unreadable parts are dropped element by element, and everything readable is
// carried over.
func Normalize(raw []byte) (Document, Outcome) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DefaultDocument(), Outcome{Created: true}
	}

	top, ok := decodeObject(trimmed)
	if !ok {
		return DefaultDocument(), Outcome{Created: true, Repaired: true}
	}

	n := &normalizer{}
	doc := Document{Revision: decodeRevision(top["revision"], n)}

	var tabs []map[string]json.RawMessage
	for _, item := range decodeList(top["tabs"]) {
		if fields, ok := decodeObject(item); ok {
			tabs = append(tabs, fields)
		} else {
			n.repaired = true
		}
	}

	if len(tabs) == 0 {
		tab := NewTab(DefaultTabID, DefaultTabName, DefaultIcon)
		n.fillTab(&tab, top)
		n.repairTab(&tab)
		doc.Tabs = []Tab{tab}
		doc.ActiveTabID = DefaultTabID
		return doc, Outcome{Migrated: true, Repaired: n.repaired}
	}

	doc.Tabs = make([]Tab, 0, len(tabs))
	for idx, fields := range tabs {
		tab := NewTab("", "", DefaultIcon)
		tab.ID, _ = decodeString(fields["id"])
		name, _ := decodeString(fields["name"])
		tab.Name = strings.TrimSpace(name)
		if tab.Name != name {
			n.repaired = true
		}
		if tab.Name == "" {
			tab.Name = fallbackTabName(idx)
			n.repaired = true
		}
		icon, _ := decodeString(fields["icon"])
		tab.Icon = ParseIcon(icon)
		if string(tab.Icon) != icon {
			n.repaired = true
		}
		n.fillTab(&tab, fields)
		n.repairTab(&tab)
		doc.Tabs = append(doc.Tabs, tab)
	}
	n.repairTabIDs(doc.Tabs)

	active, _ := decodeString(top["activeTabId"])
	doc.ActiveTabID = active
	if doc.TabIndex(active) < 0 {
		doc.ActiveTabID = doc.Tabs[0].ID
		n.repaired = true
	}
	return doc, Outcome{Repaired: n.repaired}
}

type normalizer struct {
	repaired bool
}

type wireLayout struct {
	I        string   `json:"i"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	W        float64  `json:"w"`
	H        float64  `json:"h"`
	MinW     float64  `json:"minW"`
	MinH     float64  `json:"minH"`
	SizeMode SizeMode `json:"sizeMode"`
}

// fillTab reads the widget fields shared by current tabs and the legacy
// top-level shape.
func (n *normalizer) fillTab(tab *Tab, fields map[string]json.RawMessage) {
	for _, item := range decodeList(fields["layouts"]) {
		var entry wireLayout
		if err := json.Unmarshal(item, &entry); err != nil {
			n.repaired = true
			continue
		}
		tab.Layouts = append(tab.Layouts, LayoutEntry{
			I:        entry.I,
			X:        n.toInt(entry.X),
			Y:        n.toInt(entry.Y),
			W:        n.toInt(entry.W),
			H:        n.toInt(entry.H),
			MinW:     n.toInt(entry.MinW),
			MinH:     n.toInt(entry.MinH),
			SizeMode: entry.SizeMode,
		})
	}
	for _, item := range decodeList(fields["enabledWidgets"]) {
		id, ok := decodeString(item)
		if !ok {
			n.repaired = true
			continue
		}
		tab.EnabledWidgets = append(tab.EnabledWidgets, id)
	}
	for _, item := range decodeList(fields["widgetInstances"]) {
		var instance WidgetInstance
		if err := json.Unmarshal(item, &instance); err != nil {
			n.repaired = true
			continue
		}
		tab.WidgetInstances = append(tab.WidgetInstances, instance)
	}
	settings, _ := decodeObject(fields["widgetSettings"])
	for id, value := range settings {
		value = bytes.TrimSpace(value)
		if len(value) == 0 || bytes.Equal(value, []byte("null")) {
			n.repaired = true
			continue
		}
		tab.WidgetSettings[id] = Settings{Raw: value}
	}
}

// repairTab restores the enabled => (one instance, one layout entry) invariant
// and fixes entry geometry. Existing data wins over synthesized data.
func (n *normalizer) repairTab(tab *Tab) {
	instances := make([]WidgetInstance, 0, len(tab.WidgetInstances))
	seen := map[string]struct{}{}
	for _, instance := range tab.WidgetInstances {
		if _, dup := seen[instance.ID]; dup || instance.ID == "" {
			n.repaired = true
			continue
		}
		seen[instance.ID] = struct{}{}
		if strings.TrimSpace(instance.Type) == "" {
			instance.Type = InferWidgetType(instance.ID)
			n.repaired = true
		}
		instances = append(instances, instance)
	}

	layouts := make([]LayoutEntry, 0, len(tab.Layouts))
	seen = map[string]struct{}{}
	for _, entry := range tab.Layouts {
		if _, dup := seen[entry.I]; dup || entry.I == "" {
			n.repaired = true
			continue
		}
		seen[entry.I] = struct{}{}
		layouts = append(layouts, n.repairEntry(entry))
	}

	enabled := make([]string, 0, len(tab.EnabledWidgets))
	seen = map[string]struct{}{}
	for _, id := range tab.EnabledWidgets {
		if _, dup := seen[id]; dup || id == "" {
			n.repaired = true
			continue
		}
		seen[id] = struct{}{}
		enabled = append(enabled, id)
	}

	tab.WidgetInstances = instances
	tab.Layouts = layouts
	tab.EnabledWidgets = enabled

	for _, id := range enabled {
		if _, ok := tab.Instance(id); !ok {
			tab.WidgetInstances = append(tab.WidgetInstances, WidgetInstance{ID: id, Type: InferWidgetType(id)})
			n.repaired = true
		}
		if _, ok := tab.Layout(id); !ok {
			tab.Layouts = append(tab.Layouts, LayoutEntry{
				I:        id,
				X:        0,
				Y:        tab.bottom(),
				W:        fallbackSize.W,
				H:        fallbackSize.H,
				MinW:     fallbackMinSize.W,
				MinH:     fallbackMinSize.H,
				SizeMode: DefaultSizeMode,
			})
			n.repaired = true
		}
	}

	for id, settings := range tab.WidgetSettings {
		widgetType := InferWidgetType(id)
		if instance, ok := tab.Instance(id); ok {
			widgetType = instance.Type
		}
		tab.WidgetSettings[id] = DecodeSettings(widgetType, settings.Raw)
	}
}

func (n *normalizer) repairEntry(entry LayoutEntry) LayoutEntry {
	if !entry.SizeMode.Valid() {
		entry.SizeMode = DefaultSizeMode
		n.repaired = true
	}
	clampMin := func(v *int, floor int) {
		if *v < floor {
			*v = floor
			n.repaired = true
		}
	}
	clampMin(&entry.X, 0)
	clampMin(&entry.Y, 0)
	clampMin(&entry.MinW, 0)
	clampMin(&entry.MinH, 0)
	clampMin(&entry.W, max(entry.MinW, 1))
	clampMin(&entry.H, max(entry.MinH, 1))
	return entry
}

// repairTabIDs replaces empty and duplicate tab ids with tab-<n>, n being the
// smallest number not already taken.
func (n *normalizer) repairTabIDs(tabs []Tab) {
	used := map[string]struct{}{}
	for _, tab := range tabs {
		used[tab.ID] = struct{}{}
	}
	seen := map[string]struct{}{}
	next := 1
	for i := range tabs {
		if _, dup := seen[tabs[i].ID]; !dup && tabs[i].ID != "" {
			seen[tabs[i].ID] = struct{}{}
			continue
		}
		for {
			candidate := "tab-" + strconv.Itoa(next)
			next++
			if _, taken := used[candidate]; !taken {
				tabs[i].ID = candidate
				break
			}
		}
		used[tabs[i].ID] = struct{}{}
		seen[tabs[i].ID] = struct{}{}
		n.repaired = true
	}
}

func (n *normalizer) toInt(v float64) int {
	rounded := math.Round(v)
	if rounded != v {
		n.repaired = true
	}
	if math.IsNaN(rounded) || math.IsInf(rounded, 0) {
		return 0
	}
	return int(rounded)
}

// InferWidgetType strips a trailing -<digits> suffix from an instance id.
// Ids without one are their own type.
func InferWidgetType(id string) string {
	if match := instanceSuffix.FindStringSubmatch(id); match != nil {
		return match[1]
	}
	return id
}

func fallbackTabName(idx int) string {
	if idx == 0 {
		return DefaultTabName
	}
	return "Tab " + strconv.Itoa(idx+1)
}

func decodeRevision(raw json.RawMessage, n *normalizer) int64 {
	if len(raw) == 0 {
		return 0
	}
	var revision int64
	if err := json.Unmarshal(raw, &revision); err != nil || revision < 0 {
		n.repaired = true
		return 0
	}
	return revision
}

func decodeObject(raw []byte) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func decodeList(raw []byte) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func decodeString(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}
