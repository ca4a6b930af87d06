package dashboard

import "encoding/json"

// wireDocument is the stored shape. The top-level layouts, enabledWidgets,
// widgetInstances and widgetSettings are deprecated mirrors of the active tab
// kept for readers of the single-workspace format.
type wireDocument struct {
	Tabs            []Tab               `json:"tabs"`
	ActiveTabID     string              `json:"activeTabId"`
	Revision        int64               `json:"revision"`
	Layouts         []LayoutEntry       `json:"layouts"`
	EnabledWidgets  []string            `json:"enabledWidgets"`
	WidgetInstances []WidgetInstance    `json:"widgetInstances"`
	WidgetSettings  map[string]Settings `json:"widgetSettings"`
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := wireDocument{
		Tabs:        make([]Tab, len(d.Tabs)),
		ActiveTabID: d.ActiveTabID,
		Revision:    d.Revision,
	}
	for i, tab := range d.Tabs {
		out.Tabs[i] = withEmptyCollections(tab)
	}
	active, _ := d.ActiveTab()
	active = withEmptyCollections(active)
	out.Layouts = active.Layouts
	out.EnabledWidgets = active.EnabledWidgets
	out.WidgetInstances = active.WidgetInstances
	out.WidgetSettings = active.WidgetSettings
	return json.Marshal(out)
}

// UnmarshalJSON accepts any stored vintage; see Normalize.
func (d *Document) UnmarshalJSON(data []byte) error {
	*d, _ = Normalize(data)
	return nil
}

func withEmptyCollections(tab Tab) Tab {
	if tab.Layouts == nil {
		tab.Layouts = []LayoutEntry{}
	}
	if tab.EnabledWidgets == nil {
		tab.EnabledWidgets = []string{}
	}
	if tab.WidgetInstances == nil {
		tab.WidgetInstances = []WidgetInstance{}
	}
	if tab.WidgetSettings == nil {
		tab.WidgetSettings = map[string]Settings{}
	}
	return tab
}
