package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the board controls.
type keyMap struct {
	Start      key.Binding
	Faster     key.Binding
	Slower     key.Binding
	Pause      key.Binding
	Reset      key.Binding
	ClearPath  key.Binding
	ClearWalls key.Binding
	Mute       key.Binding
	Cancel     key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Start: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "start"),
		),
		Faster: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "faster"),
		),
		Slower: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "slower"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause/resume"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "regenerate"),
		),
		ClearPath: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear path"),
		),
		ClearWalls: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "clear walls"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "cancel"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Pause, k.Faster, k.Slower, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Pause, k.Cancel},
		{k.Faster, k.Slower, k.Mute},
		{k.Reset, k.ClearPath, k.ClearWalls},
		{k.Help, k.Quit},
	}
}
