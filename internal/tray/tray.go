// Package tray provides the desktop system tray menu of myomod.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onRecord func(start bool) error
	onOpen   func()
	onQuit   func()

	enabled   bool
	recording bool
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuRecord      *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuGaps        *systray.MenuItem
}

// New creates a new Tray instance with streaming enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback run when pose streaming is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnRecord sets the callback run when recording is started or stopped. A
// returned error leaves the recording state unchanged.
func (t *Tray) OnRecord(fn func(start bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRecord = fn
}

// OnOpen sets the callback run when the web UI menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("MyoMod")
	systray.SetTooltip("MyoMod hand telemetry")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(streamingTitle(t.enabled), "Toggle pose streaming")
	t.menuRecord = systray.AddMenuItem(recordTitle(t.recording), "Record the notification stream")
	systray.AddSeparator()

	t.menuLastGesture = systray.AddMenuItem("Last: none", "Last matched gesture")
	t.menuLastGesture.Disable()
	t.menuGaps = systray.AddMenuItem(gapsTitle(0), "Counter gaps on all streams")
	t.menuGaps.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open UI...", "Open the web UI in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit MyoMod")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuRecord.ClickedCh:
				t.handleRecord()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func streamingTitle(enabled bool) string {
	if enabled {
		return "● Streaming"
	}
	return "○ Paused"
}

func recordTitle(recording bool) string {
	if recording {
		return "■ Stop recording"
	}
	return "● Start recording"
}

func gapsTitle(gaps uint64) string {
	return fmt.Sprintf("Gaps: %d", gaps)
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(streamingTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleRecord handles the record menu item click.
func (t *Tray) handleRecord() {
	t.mu.RLock()
	start := !t.recording
	callback := t.onRecord
	t.mu.RUnlock()

	if callback != nil {
		if err := callback(start); err != nil {
			return
		}
	}
	t.SetRecording(start)
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetRecording updates the recording state shown in the menu.
func (t *Tray) SetRecording(recording bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recording = recording
	if t.menuRecord != nil {
		t.menuRecord.SetTitle(recordTitle(recording))
	}
}

// SetLastGesture updates the last gesture display in the menu.
func (t *Tray) SetLastGesture(name string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastGesture != nil {
		if name == "" {
			t.menuLastGesture.SetTitle("Last: none")
		} else {
			t.menuLastGesture.SetTitle("Last: " + name)
		}
	}
}

// SetGaps updates the gap counter display in the menu.
func (t *Tray) SetGaps(gaps uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuGaps != nil {
		t.menuGaps.SetTitle(gapsTitle(gaps))
	}
}

// IsEnabled returns the current streaming state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// IsRecording returns the recording state shown in the menu.
func (t *Tray) IsRecording() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recording
}
