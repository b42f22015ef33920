package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/myooken/p2pShareDisplay/internal/logging"
	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/session"
	"github.com/myooken/p2pShareDisplay/internal/utils"
)

const (
	refreshInterval = 500 * time.Millisecond

	// Rows above the surface box: header, status and info line.
	surfaceTop = 3

	defaultSurfaceW = 60
	defaultSurfaceH = 15
)

// RoomController is the part of a mounted room view the UI drives.
type RoomController interface {
	Room() string
	Snapshot() session.Snapshot
	Retry(password string) error
	Pointer(ev session.PointerEvent)
	SetPointerMode(m session.PointerMode)
	SetCursorColor(color string)
	StartShare(ctx context.Context, src media.Source) error
	StopShare() error
}

// Events wakes the room UI when the view, the log ring or the player change.
// Publish is meant to be passed as session.Options.OnEvent.
type Events struct {
	ch chan struct{}
}

func NewEvents() *Events {
	return &Events{ch: make(chan struct{}, 1)}
}

// Publish records that the room view changed. The UI re-reads the view's
// snapshot, so coalescing wake-ups loses nothing.
func (e *Events) Publish(session.Event) {
	e.wake()
}

func (e *Events) wake() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// RoomOptions configures the room UI.
type RoomOptions struct {
	// Link is the shareable room link, empty when none is served.
	Link string
	// Source is the host's capture source; nil disables sharing.
	Source media.Source
	// AutoShare starts sharing as soon as the room is hosted.
	AutoShare bool
	// Player renders the guest's incoming stream; may be nil.
	Player *media.Player
	// Logs backs the log panel; may be nil.
	Logs        *logging.Ring
	PointerMode session.PointerMode
	CursorColor string
}

type (
	wakeMsg  struct{}
	tickMsg  time.Time
	shareMsg struct{ err error }
	retryMsg struct{ err error }
)

// RoomModel is the bubbletea model of a mounted room view.
type RoomModel struct {
	ctx    context.Context
	ctrl   RoomController
	events *Events
	opts   RoomOptions

	snap     session.Snapshot
	stats    media.PlaybackStats
	logs     []logging.Entry
	started  time.Time
	spinner  spinner.Model
	password textinput.Model

	width, height int
	showLogs      bool
	inside        bool
	colorIdx      int
	autoShared    bool
	shareErr      error
	retryErr      error
	quitting      bool
}

// NewRoomModel returns the UI for ctrl. Wake-ups from opts.Logs and
// opts.Player are routed through events.
func NewRoomModel(ctx context.Context, ctrl RoomController, events *Events, opts RoomOptions) *RoomModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	ti := textinput.New()
	ti.Placeholder = "room password"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.CharLimit = 128
	ti.Width = 32

	if opts.CursorColor == "" {
		opts.CursorColor = session.DefaultCursorColor
	}
	colorIdx := 0
	for i, c := range session.CursorPalette {
		if strings.EqualFold(c, opts.CursorColor) {
			colorIdx = i
		}
	}

	if opts.Logs != nil {
		opts.Logs.OnAppend(events.wake)
	}
	if opts.Player != nil {
		opts.Player.OnChange(func(media.PlaybackStats) { events.wake() })
	}

	m := &RoomModel{
		ctx:      ctx,
		ctrl:     ctrl,
		events:   events,
		opts:     opts,
		started:  time.Now(),
		spinner:  s,
		password: ti,
		colorIdx: colorIdx,
	}
	return m
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(m.sync(), m.spinner.Tick, m.listen(), tick())
}

func (m *RoomModel) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.events.ch:
			return wakeMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.key(msg)

	case tea.MouseMsg:
		m.pointer(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case wakeMsg:
		cmds = append(cmds, m.sync(), m.listen())

	case tickMsg:
		cmds = append(cmds, m.sync())
		if !m.quitting {
			cmds = append(cmds, tick())
		}

	case shareMsg:
		m.shareErr = msg.err
		cmds = append(cmds, m.sync())

	case retryMsg:
		m.retryErr = msg.err
		cmds = append(cmds, m.sync())

	default:
		if m.snap.ShowPrompt {
			var cmd tea.Cmd
			m.password, cmd = m.password.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// sync re-reads the room view and the collaborators the UI displays.
func (m *RoomModel) sync() tea.Cmd {
	prompt := m.snap.ShowPrompt
	m.snap = m.ctrl.Snapshot()
	if m.opts.Player != nil {
		m.stats = m.opts.Player.Stats()
	}
	if m.opts.Logs != nil {
		m.logs = m.opts.Logs.Entries()
	}

	var cmd tea.Cmd
	switch {
	case m.snap.ShowPrompt && !prompt:
		m.password.Reset()
		cmd = m.password.Focus()
	case !m.snap.ShowPrompt && prompt:
		m.password.Blur()
	}

	if m.opts.AutoShare && !m.autoShared && m.opts.Source != nil && m.role() == session.RoleHost {
		m.autoShared = true
		return tea.Batch(cmd, m.startShare())
	}
	return cmd
}

func (m *RoomModel) key(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return tea.Quit
	}

	if m.snap.ShowPrompt {
		switch msg.Type {
		case tea.KeyEnter:
			pw := m.password.Value()
			m.password.Reset()
			m.retryErr = nil
			ctrl := m.ctrl
			return func() tea.Msg { return retryMsg{err: ctrl.Retry(pw)} }
		case tea.KeyEsc:
			m.quitting = true
			return tea.Quit
		}
		var cmd tea.Cmd
		m.password, cmd = m.password.Update(msg)
		return cmd
	}

	switch msg.String() {
	case "q", "esc":
		m.quitting = true
		return tea.Quit
	case "l":
		m.showLogs = !m.showLogs
	case "s":
		if m.role() != session.RoleHost || m.opts.Source == nil {
			return nil
		}
		if m.snap.Sharing {
			ctrl := m.ctrl
			return func() tea.Msg { return shareMsg{err: ctrl.StopShare()} }
		}
		return m.startShare()
	case "m":
		if m.opts.PointerMode == session.PointerAlways {
			m.opts.PointerMode = session.PointerClick
		} else {
			m.opts.PointerMode = session.PointerAlways
		}
		m.ctrl.SetPointerMode(m.opts.PointerMode)
	case "c":
		m.colorIdx = (m.colorIdx + 1) % len(session.CursorPalette)
		m.opts.CursorColor = session.CursorPalette[m.colorIdx]
		m.ctrl.SetCursorColor(m.opts.CursorColor)
	}
	return nil
}

func (m *RoomModel) startShare() tea.Cmd {
	ctx, ctrl, src := m.ctx, m.ctrl, m.opts.Source
	m.shareErr = nil
	return func() tea.Msg { return shareMsg{err: ctrl.StartShare(ctx, src)} }
}

// pointer forwards guest mouse input over the surface as pointer events.
func (m *RoomModel) pointer(msg tea.MouseMsg) {
	if m.role() != session.RoleGuest {
		return
	}

	x, y, inside := m.surfaceRect().Normalize(float64(msg.X)+0.5, float64(msg.Y)+0.5)
	if !inside {
		if m.inside {
			m.inside = false
			m.ctrl.Pointer(session.PointerEvent{Kind: session.PointerLeave})
		}
		return
	}
	m.inside = true

	kind := session.PointerMove
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return
		}
		kind = session.PointerDown
	case tea.MouseActionRelease:
		kind = session.PointerUp
	}
	m.ctrl.Pointer(session.PointerEvent{Kind: kind, X: x, Y: y})
}

func (m *RoomModel) role() session.Role {
	return m.state().Role()
}

func (m *RoomModel) state() session.State {
	if m.snap.State == nil {
		return session.Unresolved{}
	}
	return m.snap.State
}

// surfaceSize is the inner size of the surface box in cells.
func (m *RoomModel) surfaceSize() (w, h int) {
	if m.width == 0 || m.height == 0 {
		return defaultSurfaceW, defaultSurfaceH
	}
	return clampInt(m.width-2, 20, 100), clampInt(m.height-surfaceTop-8, 5, 30)
}

// surfaceRect is where the inside of the surface box lands on screen.
func (m *RoomModel) surfaceRect() session.Rect {
	w, h := m.surfaceSize()
	return session.Rect{X: 1, Y: surfaceTop + 1, W: float64(w), H: float64(h)}
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	line := lipgloss.NewStyle()
	if m.width > 0 {
		line = line.MaxWidth(m.width)
	}

	lines := []string{
		line.Render(HeaderStyle.Render(fmt.Sprintf("%s  p2pshare  room %s", IconScreen, m.ctrl.Room()))),
		line.Render(m.statusLine()),
		line.Render(m.infoLine()),
		m.surface(),
		line.Render(FooterStyle.Render(m.help())),
	}
	if m.showLogs {
		lines = append(lines, m.logPanel())
	}
	if m.snap.ShowPrompt {
		lines = append(lines, m.prompt())
	}
	return strings.Join(lines, "\n")
}

func (m *RoomModel) statusLine() string {
	st := m.state()
	status := st.Status()
	failed := status == session.StatusError || status == session.StatusAuthFailed || status == session.StatusConnectionError
	ok := status == session.StatusConnected

	icon := m.spinner.View()
	switch {
	case failed:
		icon = IconError
	case ok:
		icon = IconSuccess
	case status == session.StatusConnectionClosed:
		icon = IconInfo
	}
	return fmt.Sprintf("%s %s", icon, statusStyle(ok, failed).Render(session.Display(st)))
}

func (m *RoomModel) infoLine() string {
	var parts []string
	switch m.role() {
	case session.RoleHost:
		parts = append(parts, "host")
		if st, ok := m.snap.State.(session.Hosting); ok && st.Guest != "" {
			parts = append(parts, IconPeer+" "+st.Guest)
		}
		if m.opts.Link != "" {
			parts = append(parts, IconLink+" "+m.opts.Link)
		}
	case session.RoleGuest:
		parts = append(parts, "guest", "cursor "+m.opts.PointerMode.String())
		parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color(m.opts.CursorColor)).Render(IconCursor))
	default:
		parts = append(parts, "resolving role")
	}
	if m.snap.Endpoint != "" {
		parts = append(parts, "id "+m.snap.Endpoint)
	}
	return MutedStyle.Render(strings.Join(parts, " · "))
}

// surface draws the shared screen area with the remote cursor on top.
func (m *RoomModel) surface() string {
	w, h := m.surfaceSize()
	rows := make([][]rune, h)
	for i := range rows {
		rows[i] = []rune(strings.Repeat(" ", w))
	}

	msg := m.surfaceText()
	top := (h - len(msg)) / 2
	for i, text := range msg {
		r := []rune(utils.TruncateString(text, w))
		if top+i < 0 || top+i >= h {
			continue
		}
		copy(rows[top+i][(w-len(r))/2:], r)
	}

	cx, cy := -1, -1
	if m.role() == session.RoleHost && m.snap.Cursor.Visible {
		cx = clampInt(int(m.snap.Cursor.X*float64(w)), 0, w-1)
		cy = clampInt(int(m.snap.Cursor.Y*float64(h)), 0, h-1)
	}

	var b strings.Builder
	for y, row := range rows {
		if y > 0 {
			b.WriteByte('\n')
		}
		if y != cy {
			b.WriteString(string(row))
			continue
		}
		b.WriteString(string(row[:cx]))
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(m.snap.Cursor.Color)).Render(IconCursor))
		b.WriteString(string(row[cx+1:]))
	}
	return SurfaceStyle.Render(b.String())
}

func (m *RoomModel) surfaceText() []string {
	switch m.role() {
	case session.RoleHost:
		if m.shareErr != nil {
			return []string{"Could not start sharing", m.shareErr.Error()}
		}
		if m.snap.Sharing {
			return []string{"Sharing your screen"}
		}
		if m.opts.Source == nil {
			return []string{"No capture source configured"}
		}
		return []string{"Not sharing", "press s to share"}
	case session.RoleGuest:
		if m.snap.Remote == nil {
			if _, ok := m.snap.State.(session.GuestAccepted); ok {
				return []string{"Waiting for the host to share"}
			}
			return []string{session.Display(m.state())}
		}
		return m.playbackText()
	}
	return []string{IconWaiting}
}

func (m *RoomModel) playbackText() []string {
	if !m.stats.Playing {
		return []string{"Receiving " + m.snap.Remote.ID(), "buffering"}
	}
	now := time.Now()
	lines := []string{
		"Playing " + m.stats.StreamID,
		fmt.Sprintf("%s · %s · %s",
			utils.FormatSize(int64(m.stats.Bytes)),
			utils.FormatBitrate(utils.Rate(m.stats.Bytes, m.stats.StartedAt, now)),
			utils.FormatTimeDuration(now.Sub(m.stats.StartedAt)),
		),
	}
	if m.stats.Recording != "" {
		lines = append(lines, "recording to "+m.stats.Recording)
	}
	return lines
}

func (m *RoomModel) help() string {
	keys := []string{"q quit", "l logs"}
	switch m.role() {
	case session.RoleHost:
		if m.opts.Source != nil {
			if m.snap.Sharing {
				keys = append(keys, "s stop sharing")
			} else {
				keys = append(keys, "s share")
			}
		}
	case session.RoleGuest:
		keys = append(keys, "m cursor mode", "c cursor colour")
	}
	return strings.Join(keys, " · ")
}

func (m *RoomModel) logPanel() string {
	return LogTable(m.logs, m.width)
}

func (m *RoomModel) prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", IconLock, WarningStyle.Render("Enter Password"))
	b.WriteString(m.password.View())
	if m.retryErr != nil {
		b.WriteString("\n" + ErrorStyle.Render(m.retryErr.Error()))
	}
	b.WriteString("\n" + MutedStyle.Render("enter retry · esc quit"))
	return PromptBoxStyle.Render(b.String())
}

// Summary describes the session when the UI exits.
func (m *RoomModel) Summary() Summary {
	return Summary{
		Room:     m.ctrl.Room(),
		Role:     m.role(),
		Status:   session.Display(m.state()),
		Endpoint: m.snap.Endpoint,
		Duration: time.Since(m.started),
		Playback: m.stats,
	}
}

// RunRoom runs the room UI until the user quits or ctx is cancelled.
func RunRoom(ctx context.Context, m *RoomModel) error {
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("room UI: %w", err)
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
