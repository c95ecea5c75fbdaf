package main

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/netsys-io/netbricks/scheduler"
)

// Live stats view: one row per port (queue 0) and per core, refreshed every
// second. Quit with q or ctrl-c.

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	rowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	footerStyle = lipgloss.NewStyle().Faint(true)
)

type tickMsg time.Time

type statsModel struct {
	ctx         *scheduler.Context
	flowsDumped *atomic.Uint64
}

func runTui(ctx *scheduler.Context, flowsDumped *atomic.Uint64) error {
	m := statsModel{ctx: ctx, flowsDumped: flowsDumped}
	_, err := tea.NewProgram(m).Run()
	return err
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m statsModel) Init() tea.Cmd { return tick() }

func (m statsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m statsModel) View() string {
	s := titleStyle.Render("tcpreconstruct") + "\n\n"

	s += headerStyle.Render(fmt.Sprintf("%-16s %12s %12s", "PORT", "RX", "TX")) + "\n"
	names := make([]string, 0, len(m.ctx.Ports))
	for name := range m.ctx.Ports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rx, tx := m.ctx.Ports[name].Stats(0)
		s += rowStyle.Render(fmt.Sprintf("%-16s %12d %12d", name, rx, tx)) + "\n"
	}

	s += "\n" + headerStyle.Render(fmt.Sprintf("%-16s %12s", "CORE", "ITERATIONS")) + "\n"
	cores := append([]int(nil), m.ctx.ActiveCores...)
	sort.Ints(cores)
	for _, core := range cores {
		if sched := m.ctx.Scheduler(core); sched != nil {
			s += rowStyle.Render(fmt.Sprintf("%-16d %12d", core, sched.Iterations())) + "\n"
		}
	}

	s += "\n" + rowStyle.Render(fmt.Sprintf("flows dumped: %d", m.flowsDumped.Load())) + "\n"
	s += footerStyle.Render("q: quit")
	return s
}
