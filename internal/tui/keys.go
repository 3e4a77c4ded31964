package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Key is one binding: the key strings that trigger it and its help label.
type Key struct {
	Keys []string
	Help string
}

// Matches reports whether msg triggers the binding.
func (k Key) Matches(msg tea.KeyMsg) bool {
	s := msg.String()
	for _, key := range k.Keys {
		if s == key {
			return true
		}
	}
	return false
}

// MatchesAny reports whether msg triggers any of the bindings.
func MatchesAny(msg tea.KeyMsg, keys ...Key) bool {
	for _, k := range keys {
		if k.Matches(msg) {
			return true
		}
	}
	return false
}

// KeyMap defines the console key bindings.
type KeyMap struct {
	Up       Key
	Down     Key
	PageUp   Key
	PageDown Key
	Select   Key
	Back     Key
	Quit     Key
	Refresh  Key

	// Module navigation
	Help      Key
	Dashboard Key
	Stock     Key
	Dispense  Key
	Alerts    Key
	Exit      Key
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       Key{Keys: []string{"up", "k"}, Help: "up"},
		Down:     Key{Keys: []string{"down", "j"}, Help: "down"},
		PageUp:   Key{Keys: []string{"pgup", "ctrl+u"}, Help: "page up"},
		PageDown: Key{Keys: []string{"pgdown", "ctrl+d"}, Help: "page down"},
		Select:   Key{Keys: []string{"enter"}, Help: "select"},
		Back:     Key{Keys: []string{"esc"}, Help: "back"},
		Quit:     Key{Keys: []string{"q", "ctrl+c"}, Help: "quit"},
		Refresh:  Key{Keys: []string{"ctrl+r"}, Help: "refresh"},

		Help:      Key{Keys: []string{"f1", "?"}, Help: "Help"},
		Dashboard: Key{Keys: []string{"f2"}, Help: "Dashboard"},
		Stock:     Key{Keys: []string{"f3"}, Help: "Stock"},
		Dispense:  Key{Keys: []string{"f4"}, Help: "Dispensing"},
		Alerts:    Key{Keys: []string{"f5"}, Help: "Alerts"},
		Exit:      Key{Keys: []string{"f10"}, Help: "Quit"},
	}
}

// IsQuit reports whether msg asks to leave the console.
func (km KeyMap) IsQuit(msg tea.KeyMsg) bool {
	return MatchesAny(msg, km.Quit, km.Exit)
}

// ModuleFor returns the module a navigation key selects, or "".
func (km KeyMap) ModuleFor(msg tea.KeyMsg) Module {
	switch {
	case km.Help.Matches(msg):
		return ModuleHelp
	case km.Dashboard.Matches(msg):
		return ModuleDashboard
	case km.Stock.Matches(msg):
		return ModuleStock
	case km.Dispense.Matches(msg):
		return ModuleDispense
	case km.Alerts.Matches(msg):
		return ModuleAlerts
	}
	return ""
}

// StatusBarHelp returns the footer help line.
func (km KeyMap) StatusBarHelp() string {
	return "[F1]Help [F2]Dashboard [F3]Stock [F4]Dispensing [F5]Alerts [F10]Quit"
}
