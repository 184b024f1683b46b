package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"stonks/internal/domain"
	"stonks/internal/session"
	"stonks/pkg/stonks"
)

// Styles.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	dangerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	codeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pendStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const pollInterval = 5 * time.Second

// Messages.
type tickMsg time.Time

type snapshotMsg struct {
	session   *session.Info
	orders    []*domain.Order
	positions []*domain.Position
	summary   *stonks.Summary
	err       error
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchCmd(client *stonks.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var msg snapshotMsg
		info, err := client.Session(ctx)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.session = info

		if msg.orders, err = client.Orders(ctx, false); err != nil {
			msg.err = err
			return msg
		}
		if msg.positions, err = client.Positions(ctx, false); err != nil {
			msg.err = err
			return msg
		}
		if msg.summary, err = client.DailySummary(ctx); err != nil {
			msg.err = err
			return msg
		}
		return msg
	}
}

// Model.
type model struct {
	client *stonks.Client

	session   *session.Info
	orders    []*domain.Order
	positions []*domain.Position
	summary   *stonks.Summary
	fetchErr  error
	fetchedAt time.Time

	viewport      viewport.Model
	ready         bool
	width, height int
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.client), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchCmd(m.client)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
			m.viewport.SetContent(m.renderContent())
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.client), tickCmd())

	case snapshotMsg:
		m.fetchErr = msg.err
		if msg.err == nil {
			m.session = msg.session
			m.orders = msg.orders
			m.positions = msg.positions
			m.summary = msg.summary
			m.fetchedAt = time.Now()
		}
		if m.ready {
			m.viewport.SetContent(m.renderContent())
		}
		return m, nil
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var headerText string
	style := headerStyle
	switch {
	case m.session == nil:
		headerText = " stonks-watch  connecting... "
	case m.session.Phase == domain.PhaseDangerZone:
		headerText = fmt.Sprintf(" stonks-watch  %s ET  %s  FLATTEN ", m.session.CurrentTimeET, m.session.Phase)
		style = dangerStyle
	default:
		headerText = fmt.Sprintf(" stonks-watch  %s ET  %s  close in %dm ",
			m.session.CurrentTimeET, m.session.Phase, m.session.MinutesToClose)
	}
	headerBar := style.Render(padOrTrunc(headerText, m.width))

	footerText := " q quit  r refresh  pgup/dn scroll"
	if !m.fetchedAt.IsZero() {
		footerText += fmt.Sprintf("    updated %s", m.fetchedAt.Format("15:04:05"))
	}
	footerBar := footerStyle.Render(padOrTrunc(footerText, m.width))

	return headerBar + "\n" + m.viewport.View() + "\n" + footerBar
}

func (m model) renderContent() string {
	var b strings.Builder

	if m.fetchErr != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("  fetch error: %v", m.fetchErr)))
		b.WriteString("\n\n")
	}
	if m.session == nil {
		return b.String()
	}

	if !m.session.TradingAllowed {
		b.WriteString(dimStyle.Render("  entries blocked: " + m.session.Reason))
		b.WriteString("\n\n")
	}

	renderSummary(&b, m.summary)
	renderPositions(&b, m.positions)
	renderOrders(&b, m.orders)
	return b.String()
}

func renderSummary(b *strings.Builder, s *stonks.Summary) {
	if s == nil {
		return
	}
	b.WriteString(titleStyle.Render("  TODAY"))
	b.WriteString("\n")
	pnlStr := fmt.Sprintf("%+.2f", s.Summary.PnL)
	if s.Summary.PnL >= 0 {
		pnlStr = gainStyle.Render(pnlStr)
	} else {
		pnlStr = lossStyle.Render(pnlStr)
	}
	b.WriteString(fmt.Sprintf("  pnl %s   trades %d   wins %d   losses %d   win rate %.0f%%\n",
		pnlStr, s.Summary.Trades, s.Summary.Wins, s.Summary.Losses, s.Summary.WinRate*100))
	if s.Account != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  equity %.2f   buying power %.2f",
			s.Account.Equity, s.Account.BuyingPower)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func renderPositions(b *strings.Builder, positions []*domain.Position) {
	var open []*domain.Position
	for _, p := range positions {
		if p.Status != domain.PositionStatusClosed {
			open = append(open, p)
		}
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("  POSITIONS (%d open)", len(open))))
	b.WriteString("\n")
	if len(open) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteString("\n\n")
		return
	}
	for _, p := range open {
		b.WriteString("  ")
		b.WriteString(codeStyle.Render(fmt.Sprintf("%-20s", p.OptionCode)))
		b.WriteString(fmt.Sprintf(" x%-3d entry %7.2f  target %7.2f  stop %7.2f  ",
			p.Quantity, p.EntryPrice, p.TargetPrice, p.StopLossPrice))
		if p.Status == domain.PositionStatusClosing {
			b.WriteString(pendStyle.Render("closing"))
		} else {
			b.WriteString(string(p.Status))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func renderOrders(b *strings.Builder, orders []*domain.Order) {
	b.WriteString(titleStyle.Render(fmt.Sprintf("  ORDERS (%d)", len(orders))))
	b.WriteString("\n")
	if len(orders) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteString("\n")
		return
	}
	for _, o := range orders {
		b.WriteString("  ")
		b.WriteString(dimStyle.Render(o.ID[:8]))
		b.WriteString("  ")
		b.WriteString(codeStyle.Render(fmt.Sprintf("%-20s", o.OptionCode)))
		b.WriteString(fmt.Sprintf(" %-4s x%-3d ", o.Side, o.Quantity))
		switch o.Status {
		case domain.OrderStatusPendingApproval:
			b.WriteString(pendStyle.Render("PENDING APPROVAL"))
		case domain.OrderStatusFilled:
			b.WriteString(gainStyle.Render(fmt.Sprintf("filled @ %.2f", o.AvgFillPrice)))
		case domain.OrderStatusRejected, domain.OrderStatusCancelled:
			b.WriteString(lossStyle.Render(string(o.Status)))
			if o.StatusReason != "" {
				b.WriteString(dimStyle.Render("  " + o.StatusReason))
			}
		default:
			b.WriteString(string(o.Status))
		}
		b.WriteString("\n")
	}
}

// padOrTrunc pads s with spaces to width, or truncates if longer.
func padOrTrunc(s string, width int) string {
	n := len(s)
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}

func main() {
	godotenv.Load()

	baseURL := os.Getenv("STONKS_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	client := stonks.NewClient(baseURL, os.Getenv("WEBHOOK_PASSPHRASE"))

	p := tea.NewProgram(
		model{client: client},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
