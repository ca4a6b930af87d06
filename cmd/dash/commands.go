package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dashboard/api/internal/dashboard"
)

var errUsage = errors.New("invalid arguments")

func registerCommands(r *CommandRegistry, c *cli) {
	r.Register(&Command{
		Name:        "show",
		Description: "Print the workspaces and the widgets of the active one",
		Usage:       "dash show",
		Run:         c.show,
	})
	r.Register(&Command{
		Name:        "add-widget",
		Description: "Add a widget to the active workspace",
		Usage:       "dash add-widget <type> [-size compact|standard|expanded] [-w N -h N]",
		Examples: []string{
			"dash add-widget weather",
			"dash add-widget crypto -size expanded",
			"dash add-widget notes -w 6 -h 4",
		},
		Run: c.addWidget,
	})
	r.Register(&Command{
		Name:        "remove-widget",
		Description: "Remove a widget from the active workspace",
		Usage:       "dash remove-widget <id>",
		Run:         c.removeWidget,
	})
	r.Register(&Command{
		Name:        "toggle-widget",
		Description: "Show or hide a widget without deleting it",
		Usage:       "dash toggle-widget <id> on|off",
		Examples:    []string{"dash toggle-widget clock-1 off"},
		Run:         c.toggleWidget,
	})
	r.Register(&Command{
		Name:        "set-settings",
		Description: "Replace a widget's settings with a JSON object",
		Usage:       "dash set-settings <id> <json>",
		Examples:    []string{`dash set-settings weather-1 '{"city":"Oslo","units":"metric"}'`},
		Run:         c.setSettings,
	})
	r.Register(&Command{
		Name:        "move",
		Description: "Move or resize a widget on the grid",
		Usage:       "dash move <id> <x> <y> [w h]",
		Examples:    []string{"dash move weather-1 4 0", "dash move weather-1 0 3 6 5"},
		Run:         c.move,
	})
	r.Register(&Command{
		Name:        "add-tab",
		Description: "Create a workspace and switch to it",
		Usage:       "dash add-tab <name> [-icon " + strings.Join(iconNames(), "|") + "]",
		Examples:    []string{"dash add-tab Work -icon work"},
		Run:         c.addTab,
	})
	r.Register(&Command{
		Name:        "rename-tab",
		Description: "Rename a workspace",
		Usage:       "dash rename-tab <id> <name>",
		Run:         c.renameTab,
	})
	r.Register(&Command{
		Name:        "delete-tab",
		Description: "Delete a workspace (the last one is kept)",
		Usage:       "dash delete-tab <id>",
		Run:         c.deleteTab,
	})
	r.Register(&Command{
		Name:        "switch-tab",
		Description: "Make a workspace the active one",
		Usage:       "dash switch-tab <id>",
		Run:         c.switchTab,
	})
}

func (c *cli) show(args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	engine, err := c.load()
	if err != nil {
		return err
	}
	doc := engine.Snapshot()

	fmt.Fprintf(c.out, "session %s (revision %d)\n\n", engine.SessionID(), doc.Revision)

	tabs := NewTableWriter([]string{"", "TAB", "NAME", "ICON", "WIDGETS"})
	for _, tab := range doc.Tabs {
		marker := ""
		if tab.ID == doc.ActiveTabID {
			marker = "*"
		}
		tabs.AddRow([]string{marker, tab.ID, tab.Name, string(tab.Icon), strconv.Itoa(len(tab.WidgetInstances))})
	}
	tabs.Print(c.out)

	active := engine.ActiveTab()
	if len(active.WidgetInstances) == 0 {
		fmt.Fprintln(c.out, "\nno widgets")
		return nil
	}
	fmt.Fprintln(c.out)
	widgets := NewTableWriter([]string{"WIDGET", "TYPE", "ENABLED", "X", "Y", "W", "H", "SIZE"})
	for _, instance := range active.WidgetInstances {
		row := []string{instance.ID, instance.Type, strconv.FormatBool(active.IsEnabled(instance.ID)), "-", "-", "-", "-", "-"}
		if entry, ok := active.Layout(instance.ID); ok {
			row[3], row[4] = strconv.Itoa(entry.X), strconv.Itoa(entry.Y)
			row[5], row[6] = strconv.Itoa(entry.W), strconv.Itoa(entry.H)
			row[7] = string(entry.SizeMode)
		}
		widgets.AddRow(row)
	}
	widgets.Print(c.out)
	return nil
}

func (c *cli) addWidget(args []string) error {
	cmd := &Command{Name: "add-widget"}
	fs := cmd.NewFlagSet(c.out)
	size := fs.String("size", "", "size mode: compact, standard or expanded")
	w := fs.Int("w", 0, "explicit width in grid columns")
	h := fs.Int("h", 0, "explicit height in grid rows")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return errUsage
	}
	mode := dashboard.SizeMode(*size)
	if *size != "" && !mode.Valid() {
		return fmt.Errorf("unknown size mode %q", *size)
	}

	engine, err := c.load()
	if err != nil {
		return err
	}
	id := engine.AddWidget(positional[0], mode, dashboard.Size{W: *w, H: *h})
	fmt.Fprintf(c.out, "added %s\n", id)
	return nil
}

func (c *cli) removeWidget(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	engine, err := c.load()
	if err != nil {
		return err
	}
	engine.RemoveWidget(args[0])
	fmt.Fprintf(c.out, "removed %s\n", args[0])
	return nil
}

func (c *cli) toggleWidget(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on", "true", "enable":
		enabled = true
	case "off", "false", "disable":
	default:
		return fmt.Errorf("expected on or off, got %q", args[1])
	}

	engine, err := c.load()
	if err != nil {
		return err
	}
	if _, ok := engine.ActiveTab().Instance(args[0]); !ok && enabled {
		return fmt.Errorf("no widget %s in the active workspace", args[0])
	}
	engine.ToggleWidget(args[0], enabled)
	fmt.Fprintf(c.out, "%s enabled=%t\n", args[0], enabled)
	return nil
}

func (c *cli) setSettings(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	raw := json.RawMessage(args[1])
	if trimmed := strings.TrimSpace(args[1]); !json.Valid(raw) || !strings.HasPrefix(trimmed, "{") {
		return fmt.Errorf("settings must be a JSON object")
	}

	engine, err := c.load()
	if err != nil {
		return err
	}
	widgetType := dashboard.InferWidgetType(args[0])
	if instance, ok := engine.ActiveTab().Instance(args[0]); ok {
		widgetType = instance.Type
	}
	engine.UpdateWidgetSettings(args[0], dashboard.DecodeSettings(widgetType, raw))
	fmt.Fprintf(c.out, "updated settings for %s\n", args[0])
	return nil
}

func (c *cli) move(args []string) error {
	if len(args) != 3 && len(args) != 5 {
		return errUsage
	}
	coords := make([]int, len(args)-1)
	for i, value := range args[1:] {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		coords[i] = n
	}

	engine, err := c.load()
	if err != nil {
		return err
	}
	layouts := engine.ActiveTab().Layouts
	found := false
	for i := range layouts {
		if layouts[i].I != args[0] {
			continue
		}
		found = true
		layouts[i].X, layouts[i].Y = coords[0], coords[1]
		if len(coords) == 4 {
			layouts[i].W, layouts[i].H = coords[2], coords[3]
		}
	}
	if !found {
		return fmt.Errorf("no layout entry for %s in the active workspace", args[0])
	}
	engine.UpdateLayouts(layouts)
	entry, _ := engine.ActiveTab().Layout(args[0])
	fmt.Fprintf(c.out, "%s at x=%d y=%d w=%d h=%d\n", entry.I, entry.X, entry.Y, entry.W, entry.H)
	return nil
}

func (c *cli) addTab(args []string) error {
	cmd := &Command{Name: "add-tab"}
	fs := cmd.NewFlagSet(c.out)
	icon := fs.String("icon", string(dashboard.DefaultIcon), "workspace icon")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) > 1 {
		return errUsage
	}
	name := ""
	if len(positional) == 1 {
		name = positional[0]
	}

	engine, err := c.load()
	if err != nil {
		return err
	}
	id := engine.AddTab(name, *icon)
	fmt.Fprintf(c.out, "added tab %s\n", id)
	return nil
}

func (c *cli) renameTab(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	engine, err := c.load()
	if err != nil {
		return err
	}
	engine.RenameTab(args[0], args[1])
	fmt.Fprintf(c.out, "renamed %s\n", args[0])
	return nil
}

func (c *cli) deleteTab(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	engine, err := c.load()
	if err != nil {
		return err
	}
	if doc := engine.Snapshot(); len(doc.Tabs) == 1 && doc.Tabs[0].ID == args[0] {
		return fmt.Errorf("cannot delete the last workspace")
	}
	engine.DeleteTab(args[0])
	fmt.Fprintf(c.out, "deleted %s\n", args[0])
	return nil
}

func (c *cli) switchTab(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	engine, err := c.load()
	if err != nil {
		return err
	}
	if engine.Snapshot().TabIndex(args[0]) < 0 {
		return fmt.Errorf("no workspace %s", args[0])
	}
	engine.SwitchTab(args[0])
	fmt.Fprintf(c.out, "active tab %s\n", args[0])
	return nil
}

func iconNames() []string {
	names := make([]string, 0, len(dashboard.Icons()))
	for _, icon := range dashboard.Icons() {
		names = append(names, string(icon))
	}
	return names
}
