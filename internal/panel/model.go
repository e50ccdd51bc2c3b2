package panel

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/querydeck/internal/query"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("246"))

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// --- Types ---

// Model renders the panel state. It owns no state transitions itself: every
// change arrives as a stateMsg from the channel, keystrokes turn into channel
// calls, and the reply comes back as another stateMsg.
type Model struct {
	ch      *Channel
	updates chan State

	state   State
	rows    table.Model
	spin    spinner.Model
	width   int
	height  int
	status  string
	hasSize bool
}

type stateMsg State
type channelErrMsg error

// --- Init ---

func NewModel(ch *Channel) *Model {
	updates := make(chan State, 16)
	ch.OnChange(func(s State) { updates <- s })

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		ch:      ch,
		updates: updates,
		state:   ch.State(),
		rows:    newResultsTable(nil),
		spin:    sp,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.announceReady(),
		m.receiveNextState(),
		m.spin.Tick,
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			_ = m.ch.Teardown()
			return m, tea.Quit
		case "tab", "right":
			m.intent(m.ch.SelectTab(m.nextTab(1)))
		case "shift+tab", "left":
			m.intent(m.ch.SelectTab(m.nextTab(-1)))
		case "n":
			if tab := m.state.Active(); tab != nil {
				m.intent(m.ch.ChangePage(tab.Page + 1))
			}
		case "p":
			if tab := m.state.Active(); tab != nil && tab.Page > 0 {
				m.intent(m.ch.ChangePage(tab.Page - 1))
			}
		case "r":
			m.intent(m.ch.Rerun())
		case "ctrl+s":
			m.intent(m.ch.SaveResults("Save Results as CSV", m.exportPath(query.FileTypeCSV)))
		case "ctrl+j":
			m.intent(m.ch.SaveResults("Save Results as JSON", m.exportPath(query.FileTypeJSON)))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.hasSize = true
		m.rows.SetWidth(m.width - 6)
		m.rows.SetHeight(max(m.height-12, 4))

	case stateMsg:
		m.state = State(msg)
		m.rows = newResultsTable(m.state.Active())
		if m.hasSize {
			m.rows.SetWidth(m.width - 6)
			m.rows.SetHeight(max(m.height-12, 4))
		}
		return m, m.receiveNextState()

	case channelErrMsg:
		m.status = msg.Error()

	case spinner.TickMsg:
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	m.rows, cmd = m.rows.Update(msg)
	return m, cmd
}

func (m *Model) intent(err error) {
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
}

func (m *Model) nextTab(step int) int {
	n := len(m.state.ResultTabs)
	if n == 0 {
		return 0
	}
	return ((m.state.ActiveTab+step)%n + n) % n
}

func (m *Model) exportPath(fileType string) string {
	tab := m.state.Active()
	name := "results"
	if tab != nil && tab.ResultID != "" {
		name = tab.ResultID
	}
	return fmt.Sprintf("%s-%s.%s", name, time.Now().Format("20060102-150405"), fileType)
}

// --- View ---

func (m *Model) View() string {
	if !m.hasSize {
		return "Initializing..."
	}

	sections := []string{m.renderTabs()}

	switch {
	case m.state.Loading:
		sections = append(sections, borderStyle.Width(m.width-4).Render(
			titleStyle.Render(m.spin.View()+" Running query...")))
	case m.state.Error != nil:
		sections = append(sections, borderStyle.Width(m.width-4).Render(
			errorStyle.Render("  "+m.state.Error.Error)))
		sections = append(sections, m.renderResults())
	default:
		sections = append(sections, m.renderResults())
	}

	sections = append(sections, m.renderFooter())
	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m *Model) renderTabs() string {
	if len(m.state.ResultTabs) == 0 {
		return titleStyle.Render("No results")
	}

	var tabs []string
	for i, tab := range m.state.ResultTabs {
		label := tab.Label
		if label == "" {
			label = fmt.Sprintf("result %d", i+1)
		}
		if tab.Failed() {
			label = "! " + label
		}
		style := tabStyle
		if i == m.state.ActiveTab {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderResults() string {
	tab := m.state.Active()
	if tab == nil {
		return borderStyle.Width(m.width - 4).Render("  Run a query to see results here.")
	}

	pages := 1
	if tab.PageSize > 0 {
		pages = (tab.Total + tab.PageSize - 1) / tab.PageSize
		if pages == 0 {
			pages = 1
		}
	}
	summary := fmt.Sprintf("%d rows • page %d/%d", tab.Total, tab.Page+1, pages)

	return borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render(summary),
			m.rows.View(),
		),
	)
}

func (m *Model) renderFooter() string {
	var lines []string
	if tab := m.state.Active(); tab != nil {
		for _, line := range tab.Messages {
			lines = append(lines, messageStyle.Render("  "+line))
		}
	}
	if m.status != "" {
		lines = append(lines, errorStyle.Render("  "+m.status))
	}
	help := messageStyle.Render(" [tab] Switch • [n/p] Page • [r] Re-run • [ctrl+s] CSV • [ctrl+j] JSON • [q] Quit")
	lines = append(lines, help)
	return strings.Join(lines, "\n")
}

// --- Commands ---

func (m *Model) announceReady() tea.Cmd {
	return func() tea.Msg {
		if err := m.ch.Ready(); err != nil {
			return channelErrMsg(err)
		}
		return nil
	}
}

func (m *Model) receiveNextState() tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-m.updates)
	}
}

func newResultsTable(tab *query.Result) table.Model {
	var cols []table.Column
	var rows []table.Row

	if tab != nil {
		width := 16
		if len(tab.Cols) > 0 {
			width = max(80/len(tab.Cols), 8)
		}
		for _, col := range tab.Cols {
			cols = append(cols, table.Column{Title: col, Width: width})
		}
		for _, row := range tab.Results {
			cells := make(table.Row, len(tab.Cols))
			for i, col := range tab.Cols {
				if v, ok := row[col]; ok && v != nil {
					cells[i] = fmt.Sprintf("%v", v)
				} else {
					cells[i] = "NULL"
				}
			}
			rows = append(rows, cells)
		}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}
