package tui

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/config"
	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/session"
	"github.com/tessro/stctl/internal/state"
	"github.com/tessro/stctl/internal/tail"
	"github.com/tessro/stctl/internal/tui/components"
	"github.com/tessro/stctl/internal/tui/styles"
)

// Panel represents which panel is focused
type Panel int

const (
	PanelNowPlaying Panel = iota
	PanelPresets
	PanelDevices
	PanelActivity
	panelCount
)

const (
	volumeStep    = 5
	actionTimeout = 10 * time.Second
	errorDuration = 5 * time.Second
)

// App holds the TUI application state
type App struct {
	sess          *session.Session
	cfg           *config.Config
	cfgPath       string
	defaultDevice string
	log           *zap.Logger

	changes chan struct{}
	events  <-chan tail.Event
}

// NewApp creates a TUI application over sess. cfgPath is where "set default"
// writes; an empty path disables it.
func NewApp(sess *session.Session, cfg *config.Config, cfgPath string, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return &App{
		sess:          sess,
		cfg:           cfg,
		cfgPath:       cfgPath,
		defaultDevice: cfg.Devices.Default,
		log:           log.With(zap.String("component", "tui")),
		changes:       make(chan struct{}, 1),
	}
}

// notify marks the device list dirty. It never blocks the store writer.
func (a *App) notify(state.Change) {
	select {
	case a.changes <- struct{}{}:
	default:
	}
}

// Model is the main TUI model
type Model struct {
	app          *App
	width        int
	height       int
	focusedPanel Panel

	rows   []components.DeviceRow
	events []tail.Event

	nowPlaying   *components.NowPlaying
	presetsView  *components.Presets
	devicesView  *components.Devices
	activityView *components.Activity

	showHelp bool

	showAdd  bool
	addInput textinput.Model
	adding   bool

	lastError   error
	errorExpiry time.Time
	notice      string

	quitting bool
}

// NewModel creates a new TUI model
func NewModel(app *App) Model {
	ti := textinput.New()
	ti.Placeholder = "192.168.1.20"
	ti.CharLimit = 64
	ti.Width = 30

	m := Model{
		app:          app,
		focusedPanel: PanelDevices,
		nowPlaying:   components.NewNowPlaying(),
		presetsView:  components.NewPresets(),
		devicesView:  components.NewDevices(),
		activityView: components.NewActivity(),
		addInput:     ti,
	}
	m.reload()
	return m
}

// Messages
type tickMsg time.Time
type changeMsg struct{}
type eventMsg tail.Event
type eventsClosedMsg struct{}
type errMsg struct{ err error }
type noticeMsg string
type defaultDeviceSetMsg string
type deviceAddedMsg struct {
	added []core.DeviceAddress
	err   error
}

// Commands
func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.app.changes
	return func() tea.Msg {
		<-ch
		return changeMsg{}
	}
}

func (m Model) waitForEvent() tea.Cmd {
	ch := m.app.events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(e)
	}
}

// action runs fn against the selected device off the UI goroutine.
func (m Model) action(fn func(ctx context.Context, id string) error) tea.Cmd {
	row := m.selected()
	if row == nil {
		return nil
	}
	id := row.Device.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := fn(ctx, id); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) refreshAll() tea.Cmd {
	sess := m.app.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if res := sess.RefreshAll(ctx); res.HasErrors() {
			return errMsg{res.Err()}
		}
		return nil
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(),
		m.waitForChange(),
		m.waitForEvent(),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if time.Now().After(m.errorExpiry) {
			m.lastError = nil
			m.notice = ""
		}
		return m, tick()

	case changeMsg:
		m.reload()
		return m, m.waitForChange()

	case eventMsg:
		m.events = append([]tail.Event{tail.Event(msg)}, m.events...)
		if len(m.events) > components.MaxActivity {
			m.events = m.events[:components.MaxActivity]
		}
		return m, m.waitForEvent()

	case eventsClosedMsg:
		return m, nil

	case errMsg:
		m.lastError = msg.err
		m.errorExpiry = time.Now().Add(errorDuration)
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		m.errorExpiry = time.Now().Add(errorDuration)
		return m, nil

	case defaultDeviceSetMsg:
		m.app.defaultDevice = string(msg)
		m.app.cfg.Devices.Default = string(msg)
		m.notice = "Default speaker set to " + string(msg)
		m.errorExpiry = time.Now().Add(errorDuration)
		return m, nil

	case deviceAddedMsg:
		m.adding = false
		if msg.err != nil {
			m.lastError = msg.err
			m.errorExpiry = time.Now().Add(errorDuration)
		}
		if len(msg.added) > 0 {
			m.notice = "Added " + msg.added[0].String()
			m.errorExpiry = time.Now().Add(errorDuration)
		}
		m.reload()
		return m, nil
	}

	if m.showAdd {
		var inputCmd tea.Cmd
		m.addInput, inputCmd = m.addInput.Update(msg)
		return m, inputCmd
	}

	return m, nil
}

// reload rebuilds the device rows from the session.
func (m *Model) reload() {
	devices := m.app.sess.Devices()
	rows := make([]components.DeviceRow, 0, len(devices))
	for _, d := range devices {
		snap, ok := m.app.sess.Snapshot(d.ID)
		if !ok {
			continue
		}
		rows = append(rows, components.DeviceRow{Device: d, Snapshot: snap})
	}
	m.rows = rows
}

func (m Model) selected() *components.DeviceRow {
	i := m.devicesView.Selected(len(m.rows))
	if i < 0 {
		return nil
	}
	return &m.rows[i]
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.showHelp {
		switch msg.String() {
		case "?", "esc":
			m.showHelp = false
		}
		return m, nil
	}

	if m.showAdd {
		return m.handleAddKeyPress(msg)
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.showHelp = true
		return m, nil
	case "a":
		m.showAdd = true
		m.addInput.SetValue("")
		m.addInput.Focus()
		return m, textinput.Blink
	case "tab":
		m.focusedPanel = (m.focusedPanel + 1) % panelCount
		return m, nil
	case "shift+tab":
		m.focusedPanel = (m.focusedPanel + panelCount - 1) % panelCount
		return m, nil
	}

	controls := m.app.sess.Controls()
	zones := m.app.sess.Zones()

	switch key := msg.String(); key {
	case " ":
		return m, m.action(controls.PlayPause)
	case "n":
		return m, m.action(controls.Next)
	case "p":
		return m, m.action(controls.Prev)
	case "+", "=":
		return m, m.action(func(ctx context.Context, id string) error {
			_, err := controls.AdjustVolume(ctx, id, volumeStep)
			return err
		})
	case "-":
		return m, m.action(func(ctx context.Context, id string) error {
			_, err := controls.AdjustVolume(ctx, id, -volumeStep)
			return err
		})
	case "m":
		return m, m.action(controls.ToggleMute)
	case "u":
		return m, m.action(controls.Power)
	case "1", "2", "3", "4", "5", "6":
		slot := int(key[0] - '0')
		return m, m.action(func(ctx context.Context, id string) error {
			return controls.SelectPreset(ctx, id, slot)
		})
	case "e":
		return m, m.zoneAction(func(ctx context.Context, id string) (*sterrors.PartialResult[[]string], error) {
			return zones.PlayEverywhere(ctx, id)
		}, "Playing everywhere")
	case "x":
		return m, m.zoneAction(func(ctx context.Context, id string) (*sterrors.PartialResult[[]string], error) {
			return zones.Dissolve(ctx, m.masterOf(id))
		}, "Zone dissolved")
	case "l":
		return m, m.zoneAction(func(ctx context.Context, id string) (*sterrors.PartialResult[[]string], error) {
			master := m.masterOf(id)
			if master == id {
				return nil, fmt.Errorf("%s is the zone master; press x to dissolve", id)
			}
			return zones.RemoveMember(ctx, master, id)
		}, "Left zone")
	case "r":
		return m, m.refreshAll()
	}

	switch m.focusedPanel {
	case PanelPresets:
		switch msg.String() {
		case "j", "down":
			m.presetsView.SelectNext()
		case "k", "up":
			m.presetsView.SelectPrev()
		case "enter":
			slot := m.presetsView.Slot()
			return m, m.action(func(ctx context.Context, id string) error {
				return controls.SelectPreset(ctx, id, slot)
			})
		}
	case PanelDevices:
		switch msg.String() {
		case "j", "down":
			m.devicesView.SelectNext(len(m.rows))
		case "k", "up":
			m.devicesView.SelectPrev()
		case "d":
			return m, m.setDefaultDevice()
		case "f":
			if row := m.selected(); row != nil {
				m.app.sess.ForgetDevice(row.Device.ID)
				m.reload()
			}
		}
	case PanelActivity:
		switch msg.String() {
		case "j", "down":
			m.activityView.ScrollDown()
		case "k", "up":
			m.activityView.ScrollUp()
		}
	}

	return m, nil
}

func (m Model) handleAddKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.showAdd = false
		m.addInput.Blur()
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.addInput.Value())
		ip, err := netip.ParseAddr(value)
		if err != nil {
			m.lastError = fmt.Errorf("invalid address %q", value)
			m.errorExpiry = time.Now().Add(errorDuration)
			return m, nil
		}
		m.showAdd = false
		m.addInput.Blur()
		m.adding = true
		return m, m.addDevice(ip.String())
	}

	var inputCmd tea.Cmd
	m.addInput, inputCmd = m.addInput.Update(msg)
	return m, inputCmd
}

func (m Model) addDevice(ip string) tea.Cmd {
	sess := m.app.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		res := sess.AddStatic(ctx, []core.DeviceAddress{{IP: ip}})
		return deviceAddedMsg{added: res.Data, err: res.Err()}
	}
}

// masterOf returns the zone master for id, or id itself when it is not in a zone.
func (m Model) masterOf(id string) string {
	if view := m.app.sess.Zones().View(id); view != nil && view.Master != nil {
		return view.Master.ID
	}
	return id
}

func (m Model) zoneAction(fn func(ctx context.Context, id string) (*sterrors.PartialResult[[]string], error), done string) tea.Cmd {
	row := m.selected()
	if row == nil {
		return nil
	}
	id := row.Device.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		res, err := fn(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		if res != nil && res.HasErrors() {
			return errMsg{res.Err()}
		}
		return noticeMsg(done)
	}
}

func (m Model) setDefaultDevice() tea.Cmd {
	row := m.selected()
	if row == nil {
		return nil
	}
	name := row.Device.Name
	if name == "" {
		name = row.Device.ID
	}
	cfg := *m.app.cfg
	path := m.app.cfgPath
	return func() tea.Msg {
		if path == "" {
			return errMsg{fmt.Errorf("no config file to save to")}
		}
		cfg.Devices.Default = name
		if err := config.Save(&cfg, path); err != nil {
			return errMsg{err}
		}
		return defaultDeviceSetMsg(name)
	}
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}
	if m.showAdd {
		return m.renderAdd()
	}

	// Left: Now Playing (top), Presets (bottom)
	// Right: Speakers (top), Activity (bottom)
	leftWidth := m.width * 60 / 100
	rightWidth := m.width - leftWidth - 2
	topHeight := m.height * 55 / 100
	bottomHeight := m.height - topHeight - 2

	row := m.selected()
	var view *core.ZoneView
	var presets []core.Preset
	var playing *core.NowPlaying
	if row != nil {
		view = m.app.sess.Zones().View(row.Device.ID)
		presets = row.Snapshot.Presets
		playing = row.Snapshot.NowPlaying
	}

	nowPlaying := m.nowPlaying.Render(row, view, leftWidth-2, topHeight-2, m.focusedPanel == PanelNowPlaying)
	presetsView := m.presetsView.Render(presets, playing, leftWidth-2, bottomHeight-2, m.focusedPanel == PanelPresets)
	devicesView := m.devicesView.Render(m.rows, rightWidth-2, topHeight-2, m.focusedPanel == PanelDevices, m.app.defaultDevice)
	activityView := m.activityView.Render(m.events, rightWidth-2, bottomHeight-2, m.focusedPanel == PanelActivity)

	leftCol := lipgloss.JoinVertical(lipgloss.Left, nowPlaying, presetsView)
	rightCol := lipgloss.JoinVertical(lipgloss.Left, devicesView, activityView)
	main := lipgloss.JoinHorizontal(lipgloss.Top, leftCol, rightCol)

	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderStatusBar() string {
	status := styles.Dim.Render("q:quit  ?:help  space:play/pause  n/p:skip  +/-:volume  m:mute  e:everywhere  x:dissolve  tab:panel")
	switch {
	case m.lastError != nil:
		status = styles.Failure.Render("Error: " + m.lastError.Error())
		if s := sterrors.GetSuggestion(m.lastError); s != "" {
			status += styles.Dim.Render("  " + s)
		}
	case m.adding:
		status = styles.Muted.Render("Probing speaker…")
	case m.notice != "":
		status = styles.Playing.Render(m.notice)
	}

	return lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 1).
		Render(status)
}

func (m Model) renderHelp() string {
	title := "stctl - Keyboard Shortcuts"
	divider := strings.Repeat("═", len(title))

	help := `
  ` + title + `
  ` + divider + `

  Global
  ──────
  q, Ctrl+C    Quit
  ?            Toggle help
  Tab          Next panel
  Shift+Tab    Previous panel
  r            Refresh all speakers
  a            Add speaker by IP

  Playback (selected speaker)
  ───────────────────────────
  Space        Play/Pause
  n / p        Next / previous track
  +/= / -      Volume up / down
  m            Mute
  u            Power
  1-6          Play preset

  Zones
  ─────
  e            Play everywhere from this speaker
  x            Dissolve this speaker's zone
  l            Leave zone

  Speakers Panel
  ──────────────
  j/↓ k/↑      Select
  d            Set as default (★)
  f            Forget speaker

  Presets Panel
  ─────────────
  j/↓ k/↑      Select
  Enter        Play preset

  Press ? or Esc to close
`

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(styles.BorderStyle.Render(help))
}

func (m Model) renderAdd() string {
	var b strings.Builder
	b.WriteString(styles.Highlight.Render("Add speaker"))
	b.WriteString("\n\n")
	b.WriteString(m.addInput.View())
	b.WriteString("\n\n")
	b.WriteString(styles.Dim.Render("Enter: add  Esc: cancel"))

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(styles.BorderStyle.Padding(1, 2).Render(b.String()))
}

// Run starts the dashboard and blocks until the user quits.
func Run(ctx context.Context, app *App) error {
	styles.SetTheme(app.cfg.TUI.Theme)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interval := time.Duration(app.cfg.TUI.RefreshInterval) * time.Millisecond
	watcher := tail.NewWatcher(app.sess.Store(), app.sess, interval)
	app.events = watcher.Events()
	go func() {
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			app.log.Warn("watcher stopped", zap.Error(err))
		}
	}()
	defer watcher.Stop()

	unlisten := app.sess.Store().Listen(app.notify)
	defer unlisten()

	p := tea.NewProgram(NewModel(app), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
