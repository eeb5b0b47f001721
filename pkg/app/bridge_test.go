package app

import (
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/kerbaras/mangaqueue/pkg/app/screens"
	"github.com/kerbaras/mangaqueue/pkg/services"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

var (
	_ services.Listener   = (*bridge)(nil)
	_ services.StatusSink = (*bridge)(nil)
	_ services.Host       = (*bridge)(nil)
)

func TestBridgeForwardsToProgram(t *testing.T) {
	b := &bridge{}
	s := &recordingSender{}

	// nothing attached yet
	b.OnQueueChanged()

	b.attach(s)
	b.OnProgress(2)
	b.OnQueueChanged()
	b.Update(services.Status{Title: "A", Text: "downloading"})
	b.Stop()

	assert.Equal(t, []tea.Msg{
		screens.ProgressMsg{Index: 2},
		screens.QueueChangedMsg{},
		screens.StatusMsg{Status: services.Status{Title: "A", Text: "downloading"}},
		screens.IdleMsg{},
	}, s.msgs)

	b.detach()
	b.OnProgress(0)
	assert.Len(t, s.msgs, 4)
}
