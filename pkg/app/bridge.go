package app

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/mangaqueue/pkg/app/screens"
	"github.com/kerbaras/mangaqueue/pkg/services"
)

// sender is the part of tea.Program the bridge uses.
type sender interface {
	Send(msg tea.Msg)
}

// bridge turns queue callbacks into program messages. It is the queue's
// Listener, StatusSink and Host while the UI runs.
type bridge struct {
	program atomic.Pointer[senderBox]
}

type senderBox struct {
	s sender
}

func (b *bridge) attach(s sender) {
	b.program.Store(&senderBox{s: s})
}

func (b *bridge) detach() {
	b.program.Store(nil)
}

func (b *bridge) send(msg tea.Msg) {
	if box := b.program.Load(); box != nil {
		box.s.Send(msg)
	}
}

func (b *bridge) OnProgress(index int) {
	b.send(screens.ProgressMsg{Index: index})
}

func (b *bridge) OnQueueChanged() {
	b.send(screens.QueueChangedMsg{})
}

func (b *bridge) Update(st services.Status) {
	b.send(screens.StatusMsg{Status: st})
}

// Stop keeps the UI open; the queue going idle is only shown.
func (b *bridge) Stop() {
	b.send(screens.IdleMsg{})
}
