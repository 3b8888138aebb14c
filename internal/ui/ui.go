package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spotenv/internal/bootstrap"
	"github.com/desertthunder/spotenv/internal/formatter"
	"github.com/desertthunder/spotenv/internal/models"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	ProgressView
	ResultView
)

// RunFunc performs a bootstrap, reporting progress on the given channel.
type RunFunc func(ctx context.Context, progress chan<- bootstrap.ProgressUpdate) (*bootstrap.Result, error)

// Plan describes the bootstrap the user is asked to confirm.
type Plan struct {
	Path     string
	Platform string
	Manifest *models.Manifest
}

// task is one bootstrap run. result and err are only read after done is closed.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	result *bootstrap.Result
	err    error
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	plan         Plan
	run          RunFunc
	width        int
	height       int
	task         *task
	progressChan chan bootstrap.ProgressUpdate
	progress     bootstrap.ProgressUpdate
	bar          progress.Model
	spinner      spinner.Model
	packages     list.Model
	result       *bootstrap.Result
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model. With autoStart the confirmation view is skipped.
func NewModel(ctx context.Context, plan Plan, run RunFunc, autoStart bool) *Model {
	m := &Model{
		ctx:     ctx,
		view:    ConfirmView,
		plan:    plan,
		run:     run,
		bar:     progress.New(progress.WithDefaultGradient()),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
	if autoStart {
		m.view = ProgressView
	}
	return m
}

// Init starts the spinner and, when auto-starting, the bootstrap.
func (m *Model) Init() tea.Cmd {
	if m.view == ProgressView {
		return tea.Batch(m.spinner.Tick, m.startBootstrap())
	}
	return nil
}

// Result returns the result and error of the last bootstrap once it has returned.
//
// It returns nil, nil when no bootstrap was started or one is still running.
func (m *Model) Result() (*bootstrap.Result, error) {
	if m.task == nil {
		return nil, nil
	}
	select {
	case <-m.task.done:
		return m.task.result, m.task.err
	default:
		return nil, nil
	}
}

// Stop cancels a bootstrap that is still running and waits for it to return.
func (m *Model) Stop() {
	if m.task == nil {
		return
	}
	m.task.cancel()
	<-m.task.done
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width-8, 10)
		if m.packages.Width() != 0 {
			m.packages.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ProgressView:
			if key.Matches(msg, m.keys.quit) {
				if m.task != nil {
					m.task.cancel()
				}
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != ProgressView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.progress = msg.data.(bootstrap.ProgressUpdate)
			return m, m.waitForProgress()
		case MsgBootstrapComplete:
			done := msg.data.(completion)
			m.result = done.result
			m.err = done.err
			m.progressChan = nil
			m.view = ResultView
			m.buildPackageList()
			return m, nil
		}
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.packages, cmd = m.packages.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	case ProgressView:
		return m.renderProgress()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no):
		return m, tea.Quit
	case key.Matches(msg, m.keys.yes):
		m.view = ProgressView
		return m, tea.Batch(m.spinner.Tick, m.startBootstrap())
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = ProgressView
		m.progress = bootstrap.ProgressUpdate{}
		m.result = nil
		m.err = nil
		return m, tea.Batch(m.spinner.Tick, m.startBootstrap())
	}

	var cmd tea.Cmd
	m.packages, cmd = m.packages.Update(msg)
	return m, cmd
}

func (m *Model) startBootstrap() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	ch := make(chan bootstrap.ProgressUpdate, 50)
	m.task = t
	m.progressChan = ch

	go func() {
		defer close(ch)
		defer cancel()
		t.result, t.err = m.run(ctx, ch)
		close(t.done)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	ch, t := m.progressChan, m.task
	return func() tea.Msg {
		if ch != nil {
			if update, ok := <-ch; ok {
				return progressUpdateMsg(update)
			}
		}
		if t == nil {
			return bootstrapCompleteMsg(nil, nil)
		}
		<-t.done
		return bootstrapCompleteMsg(t.result, t.err)
	}
}

func (m *Model) buildPackageList() {
	if m.result == nil {
		m.packages = list.New(nil, list.NewDefaultDelegate(), 0, 0)
		return
	}

	report := formatter.NewReport(m.result, m.plan.Manifest)
	m.packages = list.New(packageItems(report), list.NewDefaultDelegate(), 0, 0)
	m.packages.Title = "Packages"
	m.packages.SetShowStatusBar(false)
	m.packages.SetFilteringEnabled(false)
	m.packages.SetShowHelp(false)

	w, h := m.width-4, m.height-10
	if w <= 0 || h <= 0 {
		w, h = 60, 3*max(len(report.Packages), 1)+6
	}
	m.packages.SetSize(w, h)
}

// fraction returns how far through the manifest the bootstrap is.
func (m *Model) fraction() float64 {
	switch m.progress.Phase {
	case bootstrap.Installing:
		if m.progress.Total == 0 {
			return 0
		}
		return float64(m.progress.Step) / float64(m.progress.Total)
	case bootstrap.Complete:
		return 1
	default:
		return 0
	}
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Bootstrap downloader environment?")

	var b strings.Builder
	fmt.Fprintf(&b, "Path: %s\nPlatform: %s\nPackages: %d\n", m.plan.Path, m.plan.Platform, m.plan.Manifest.Len())
	for _, dep := range m.plan.Manifest.Dependencies() {
		fmt.Fprintf(&b, "  • %s\n", dep.Spec())
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), helpView)
}

func (m *Model) renderProgress() string {
	title := styles.title.Render("Bootstrapping Environment")

	var phase string
	switch m.progress.Phase {
	case bootstrap.Creating:
		phase = "Creating environment..."
	case bootstrap.Activating:
		phase = "Activating environment..."
	case bootstrap.Installing:
		phase = fmt.Sprintf("Installing packages (%d/%d)", m.progress.Step, m.progress.Total)
	default:
		phase = "Starting..."
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n\n%s %s\n%s\n\n%s\n\n%s",
		title, m.spinner.View(), phase, m.bar.ViewAs(m.fraction()), m.progress.Message, helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit})

	if m.err != nil {
		title := styles.err.Render(fmt.Sprintf("✗ Bootstrap failed: %v", m.err))
		return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.packages.View(), helpView)
	}
	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to retry, q to quit")
	}

	title := styles.ok.Render("✓ Environment ready")
	info := fmt.Sprintf("\nPath: %s\nPackages: %d", m.result.Path, len(m.result.Installs))
	if m.result.Environment != nil && m.result.Environment.Reused {
		info += styles.warn.Render(" (reused existing environment)")
	}
	if m.result.Activation != nil {
		info += "\nActivate with: " + styles.help.Render(m.result.Activation.Hint())
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, info, m.packages.View(), helpView)
}
