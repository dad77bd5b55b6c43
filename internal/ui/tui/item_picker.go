package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/klauern/dotsync/internal/model"
)

// PickerItem is one row in the item picker.
type PickerItem struct {
	Item model.TrackedItem
	// State is an optional status label, e.g. "modified".
	State string
}

// PickerResult is what the user chose.
type PickerResult struct {
	// Confirmed is false when the user quit without confirming.
	Confirmed bool
	// Names are the selected item names in display order.
	Names []string
}

type pickerKeyMap struct {
	Toggle    key.Binding
	ToggleAll key.Binding
	Confirm   key.Binding
	Filter    key.Binding
	ClearFlt  key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultPickerKeyMap() pickerKeyMap {
	return pickerKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "tab"),
			key.WithHelp("space/tab", "toggle"),
		),
		ToggleAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle all"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "run on selected"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		ClearFlt: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
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

var pickerStyles = struct {
	Help        lipgloss.Style
	Filter      lipgloss.Style
	FilterInput lipgloss.Style
	Status      lipgloss.Style
	DetailBox   lipgloss.Style
	DetailTitle lipgloss.Style
}{
	Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Filter:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	FilterInput: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	DetailBox:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	DetailTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
}

const (
	pickerCheckboxWidth = 3
	pickerNameWidth     = 16
	pickerKindWidth     = 9
	pickerStateWidth    = 10
	pickerPathWidth     = 40
	pickerColumnPadding = 2
	pickerColumnCount   = 5
	pickerDetailHeight  = 4 // title + path + border
)

type pickerColumnWidths struct {
	name  int
	kind  int
	state int
	path  int
}

func pickerColumns(totalWidth int) ([]table.Column, pickerColumnWidths) {
	widths := pickerColumnWidths{
		name:  pickerNameWidth,
		kind:  pickerKindWidth,
		state: pickerStateWidth,
		path:  pickerPathWidth,
	}

	base := pickerCheckboxWidth + widths.name + widths.kind + widths.state + widths.path +
		pickerColumnPadding*pickerColumnCount
	if extra := totalWidth - base; totalWidth > 0 && extra > 0 {
		widths.name += extra / 4
		widths.path += extra - extra/4
	}

	return []table.Column{
		{Title: " ", Width: pickerCheckboxWidth},
		{Title: "Name", Width: widths.name},
		{Title: "Kind", Width: widths.kind},
		{Title: "State", Width: widths.state},
		{Title: "Path", Width: widths.path},
	}, widths
}

// ItemPickerModel is the BubbleTea model for choosing which items a command runs on.
type ItemPickerModel struct {
	title        string
	table        table.Model
	items        []PickerItem
	filtered     []PickerItem
	selected     map[string]bool
	keys         pickerKeyMap
	columnWidths pickerColumnWidths
	result       PickerResult
	filter       string
	filtering    bool
	showHelp     bool
	width        int
	quitting     bool
}

// NewItemPickerModel creates a picker with every item selected.
func NewItemPickerModel(title string, items []PickerItem) ItemPickerModel {
	columns, widths := pickerColumns(0)

	selected := make(map[string]bool, len(items))
	for _, it := range items {
		selected[it.Item.Name] = true
	}

	m := ItemPickerModel{
		title:        title,
		items:        items,
		filtered:     items,
		selected:     selected,
		keys:         defaultPickerKeyMap(),
		columnWidths: widths,
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(m.toRows(items)),
		table.WithFocused(true),
		table.WithHeight(min(max(len(items), 3), 15)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m.table = t
	return m
}

func (m ItemPickerModel) toRows(items []PickerItem) []table.Row {
	rows := make([]table.Row, len(items))
	for i, it := range items {
		checkbox := "[ ]"
		if m.selected[it.Item.Name] {
			checkbox = "[x]"
		}
		rows[i] = table.Row{
			checkbox,
			truncate(it.Item.Name, m.columnWidths.name),
			truncate(it.Item.Kind.String(), m.columnWidths.kind),
			truncate(it.State, m.columnWidths.state),
			truncate(it.Item.Path, m.columnWidths.path),
		}
	}
	return rows
}

// truncate shortens value to width display cells, ending in "..." when cut.
func truncate(value string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}

// Init implements tea.Model.
func (m ItemPickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ItemPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(max(msg.Height-8-pickerDetailHeight, 3))
		columns, widths := pickerColumns(msg.Width)
		m.columnWidths = widths
		m.table.SetColumns(columns)
		m.table.SetRows(m.toRows(m.filtered))

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg), nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Filter):
			m.filtering = true
			return m, nil

		case key.Matches(msg, m.keys.ClearFlt):
			m.filter = ""
			m.applyFilter()
			return m, nil

		case key.Matches(msg, m.keys.Toggle):
			if it, ok := m.current(); ok {
				m.selected[it.Item.Name] = !m.selected[it.Item.Name]
				m.table.SetRows(m.toRows(m.filtered))
			}
			return m, nil

		case key.Matches(msg, m.keys.ToggleAll):
			count := 0
			for _, it := range m.filtered {
				if m.selected[it.Item.Name] {
					count++
				}
			}
			selectAll := count < len(m.filtered)
			for _, it := range m.filtered {
				m.selected[it.Item.Name] = selectAll
			}
			m.table.SetRows(m.toRows(m.filtered))
			return m, nil

		case key.Matches(msg, m.keys.Confirm):
			names := m.selectedNames()
			if len(names) == 0 {
				return m, nil
			}
			m.result = PickerResult{Confirmed: true, Names: names}
			m.quitting = true
			return m, tea.Quit
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m ItemPickerModel) updateFilter(msg tea.KeyMsg) ItemPickerModel {
	switch msg.String() {
	case "enter":
		m.filtering = false
	case "esc":
		m.filter = ""
		m.filtering = false
		m.applyFilter()
	case "backspace":
		if m.filter != "" {
			m.filter = m.filter[:len(m.filter)-1]
			m.applyFilter()
		}
	default:
		if len(msg.String()) == 1 {
			m.filter += msg.String()
			m.applyFilter()
		}
	}
	return m
}

func (m *ItemPickerModel) applyFilter() {
	if m.filter == "" {
		m.filtered = m.items
	} else {
		var filtered []PickerItem
		needle := strings.ToLower(m.filter)
		for _, it := range m.items {
			if strings.Contains(strings.ToLower(it.Item.Name), needle) ||
				strings.Contains(strings.ToLower(it.Item.Path), needle) ||
				strings.Contains(strings.ToLower(it.State), needle) {
				filtered = append(filtered, it)
			}
		}
		m.filtered = filtered
	}
	m.table.SetRows(m.toRows(m.filtered))
}

func (m ItemPickerModel) current() (PickerItem, bool) {
	cursor := m.table.Cursor()
	if cursor >= 0 && cursor < len(m.filtered) {
		return m.filtered[cursor], true
	}
	return PickerItem{}, false
}

func (m ItemPickerModel) selectedNames() []string {
	var names []string
	for _, it := range m.items {
		if m.selected[it.Item.Name] {
			names = append(names, it.Item.Name)
		}
	}
	return names
}

// View implements tea.Model.
func (m ItemPickerModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render(m.title))
	b.WriteString("\n\n")

	if m.filter != "" || m.filtering {
		val := pickerStyles.FilterInput.Render(m.filter)
		if m.filtering {
			val += "█"
		}
		b.WriteString(pickerStyles.Filter.Render("Filter: ") + val + "\n\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.renderDetail())
	b.WriteString("\n")

	status := fmt.Sprintf("%d of %d selected", len(m.selectedNames()), len(m.items))
	if m.filter != "" {
		status += fmt.Sprintf(", %d shown (filtered)", len(m.filtered))
	}
	b.WriteString(pickerStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}
	return b.String()
}

func (m ItemPickerModel) renderDetail() string {
	width := m.width
	if width <= 0 {
		width = pickerCheckboxWidth + m.columnWidths.name + m.columnWidths.kind + m.columnWidths.state +
			m.columnWidths.path + pickerColumnPadding*pickerColumnCount
	}

	it, ok := m.current()
	body := "No item selected."
	if ok {
		body = it.Item.Path
		if it.Item.Digest != "" {
			body += "\n" + truncate("digest "+it.Item.Digest, max(width-4, 10))
		}
	}
	header := pickerStyles.DetailTitle.Render("Live path")
	return pickerStyles.DetailBox.Width(width).Render(header + "\n" + body)
}

func (m ItemPickerModel) renderShortHelp() string {
	keys := []string{
		"↑/↓ navigate",
		"space toggle",
		"a toggle all",
		"enter run",
		"/ filter",
		"? help",
		"q quit",
	}
	return pickerStyles.Help.Render(strings.Join(keys, " • "))
}

func (m ItemPickerModel) renderFullHelp() string {
	help := `Navigation:
  ↑/k      Move up
  ↓/j      Move down

Selection:
  Space/Tab  Toggle current item
  a          Toggle all shown items

Actions:
  Enter    Run on the selected items

Filter:
  /        Start filtering (by name, path, or state)
  Esc      Clear filter

General:
  ?        Toggle full help
  q        Quit without running`
	return pickerStyles.Help.Render(help)
}

// Result returns the result of the user interaction.
func (m ItemPickerModel) Result() PickerResult {
	return m.result
}

// RunItemPicker shows the picker and returns the chosen item names.
func RunItemPicker(title string, items []PickerItem) (PickerResult, error) {
	if len(items) == 0 {
		return PickerResult{}, nil
	}

	final, err := Run(NewItemPickerModel(title, items))
	if err != nil {
		return PickerResult{}, err
	}
	if m, ok := final.(ItemPickerModel); ok {
		return m.Result(), nil
	}
	return PickerResult{}, nil
}
