package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jpillora/backoff"
	"github.com/mattn/go-runewidth"

	"github.com/alidow/beach/pkg/grid"
	"github.com/alidow/beach/pkg/keyenc"
	"github.com/alidow/beach/pkg/session"
	"github.com/alidow/beach/pkg/wire"
)

// terminalUI owns the tcell screen and drives the render/input loop for one
// session attempt, reconnecting with backoff on Error/Closed.
type terminalUI struct {
	screen tcell.Screen

	mu    sync.Mutex
	phase session.Phase
	lastErr error
}

func newTerminalUI() (*terminalUI, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorReset).Foreground(tcell.ColorReset))
	screen.HideCursor()

	return &terminalUI{screen: screen}, nil
}

func (u *terminalUI) Close() {
	u.screen.Fini()
}

func (u *terminalUI) onStateChange(sc session.StateChange) {
	u.mu.Lock()
	u.phase = sc.Phase
	u.lastErr = sc.Err
	u.mu.Unlock()
}

func (u *terminalUI) currentPhase() (session.Phase, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.phase, u.lastErr
}

// Run drives one session end to end: connect, render/forward-input until
// disconnected, then reconnect with backoff until ctx is cancelled.
func (u *terminalUI) Run(ctx context.Context, sess *session.Session) error {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: true}

	for {
		if err := sess.RequestConnect(ctx); err != nil {
			return err
		}

		cols, rows := u.screen.Size()
		sess.SetViewportSize(uint32(cols), uint32(rows))

		exitReason := u.runConnected(ctx, sess)
		if exitReason == exitQuit || ctx.Err() != nil {
			return nil
		}

		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return nil
		}
	}
}

type connectionExit int

const (
	exitDisconnected connectionExit = iota
	exitQuit
)

// runConnected renders frames and forwards keystrokes until the session
// leaves Connected/Connecting, or the user quits (Ctrl+\).
func (u *terminalUI) runConnected(ctx context.Context, sess *session.Session) connectionExit {
	eventCh := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := u.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case eventCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()

	for {
		p, _ := u.currentPhase()
		if p == session.PhaseError || p == session.PhaseClosed {
			return exitDisconnected
		}

		select {
		case <-ctx.Done():
			return exitQuit

		case ev := <-eventCh:
			switch e := ev.(type) {
			case *tcell.EventKey:
				if e.Key() == tcell.KeyCtrlBackslash {
					return exitQuit
				}
				data := keyenc.Encode(tcellEventToKeyEvent(e))
				if data != nil {
					sess.SendInput(ctx, data)
				}
			case *tcell.EventResize:
				cols, rows := e.Size()
				sess.SetViewportSize(uint32(cols), uint32(rows))
			}

		case <-ticker.C:
			u.render(sess.Store())
		}
	}
}

func (u *terminalUI) render(store *grid.Store) {
	cols, rows := u.screen.Size()
	store.SetViewport(store.GetSnapshot().ViewportTop, rows)

	u.screen.Clear()
	visible := store.VisibleRows(rows)
	snap := store.GetSnapshot()

	for y, row := range visible {
		x := 0
		for _, cell := range row.Cells {
			if x >= cols {
				break
			}
			style := styleFor(snap.Styles, cell.StyleID)
			ch := cell.Char
			if ch == 0 {
				ch = ' '
			}
			u.screen.SetContent(x, y, ch, nil, style)
			x += runewidth.RuneWidth(ch)
		}
	}

	if snap.CursorRow != nil && snap.CursorCol != nil {
		cursorY := int(int64(*snap.CursorRow) - int64(snap.ViewportTop))
		if cursorY >= 0 && cursorY < rows {
			u.screen.ShowCursor(int(*snap.CursorCol), cursorY)
		}
	}

	u.screen.Show()
}

func styleFor(styles map[uint32]grid.StyleDefinition, id uint32) tcell.Style {
	def, ok := styles[id]
	if !ok {
		return tcell.StyleDefault
	}
	color := func(packed uint32) tcell.Color {
		mode, value := wire.UnpackColor(packed)
		switch mode {
		case wire.ColorModeIndexed:
			return tcell.PaletteColor(int(value))
		case wire.ColorModeTrueColor:
			return tcell.NewHexColor(int32(value))
		}
		return tcell.ColorDefault
	}
	style := tcell.StyleDefault.
		Foreground(color(def.Fg)).
		Background(color(def.Bg))
	if def.Attrs&uint32(wire.AttrBold) != 0 {
		style = style.Bold(true)
	}
	if def.Attrs&uint32(wire.AttrUnderline) != 0 {
		style = style.Underline(true)
	}
	if def.Attrs&uint32(wire.AttrInverse) != 0 {
		style = style.Reverse(true)
	}
	return style
}

func tcellEventToKeyEvent(e *tcell.EventKey) keyenc.Event {
	mod := e.Modifiers()
	ev := keyenc.Event{
		Ctrl:  mod&tcell.ModCtrl != 0,
		Alt:   mod&tcell.ModAlt != 0,
		Shift: mod&tcell.ModShift != 0,
	}

	switch e.Key() {
	case tcell.KeyRune:
		ev.Char = e.Rune()
	case tcell.KeyEnter:
		ev.Key = keyenc.KeyEnter
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		ev.Key = keyenc.KeyBackspace
	case tcell.KeyTab:
		ev.Key = keyenc.KeyTab
	case tcell.KeyEscape:
		ev.Key = keyenc.KeyEscape
	case tcell.KeyUp:
		ev.Key = keyenc.KeyArrowUp
	case tcell.KeyDown:
		ev.Key = keyenc.KeyArrowDown
	case tcell.KeyLeft:
		ev.Key = keyenc.KeyArrowLeft
	case tcell.KeyRight:
		ev.Key = keyenc.KeyArrowRight
	case tcell.KeyHome:
		ev.Key = keyenc.KeyHome
	case tcell.KeyEnd:
		ev.Key = keyenc.KeyEnd
	case tcell.KeyPgUp:
		ev.Key = keyenc.KeyPageUp
	case tcell.KeyPgDn:
		ev.Key = keyenc.KeyPageDown
	case tcell.KeyDelete:
		ev.Key = keyenc.KeyDelete
	case tcell.KeyInsert:
		ev.Key = keyenc.KeyInsert
	case tcell.KeyF1, tcell.KeyF2, tcell.KeyF3, tcell.KeyF4, tcell.KeyF5, tcell.KeyF6,
		tcell.KeyF7, tcell.KeyF8, tcell.KeyF9, tcell.KeyF10, tcell.KeyF11, tcell.KeyF12:
		ev.Key = functionKeyName(e.Key())
	case tcell.KeyCtrlA, tcell.KeyCtrlB, tcell.KeyCtrlC, tcell.KeyCtrlD, tcell.KeyCtrlE,
		tcell.KeyCtrlF, tcell.KeyCtrlG, tcell.KeyCtrlH, tcell.KeyCtrlJ, tcell.KeyCtrlK,
		tcell.KeyCtrlL, tcell.KeyCtrlN, tcell.KeyCtrlO, tcell.KeyCtrlP, tcell.KeyCtrlQ,
		tcell.KeyCtrlR, tcell.KeyCtrlS, tcell.KeyCtrlT, tcell.KeyCtrlU, tcell.KeyCtrlV,
		tcell.KeyCtrlW, tcell.KeyCtrlX, tcell.KeyCtrlY, tcell.KeyCtrlZ:
		ev.Ctrl = true
		ev.Char = rune('a' + int(e.Key()-tcell.KeyCtrlA))
	}
	return ev
}

func functionKeyName(k tcell.Key) keyenc.Key {
	names := map[tcell.Key]keyenc.Key{
		tcell.KeyF1: keyenc.KeyF1, tcell.KeyF2: keyenc.KeyF2, tcell.KeyF3: keyenc.KeyF3,
		tcell.KeyF4: keyenc.KeyF4, tcell.KeyF5: keyenc.KeyF5, tcell.KeyF6: keyenc.KeyF6,
		tcell.KeyF7: keyenc.KeyF7, tcell.KeyF8: keyenc.KeyF8, tcell.KeyF9: keyenc.KeyF9,
		tcell.KeyF10: keyenc.KeyF10, tcell.KeyF11: keyenc.KeyF11, tcell.KeyF12: keyenc.KeyF12,
	}
	return names[k]
}

func randomPeerID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("beach-client-%x", b)
}
