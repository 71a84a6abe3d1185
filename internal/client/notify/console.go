package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Console prints notifications to a terminal. The action of the latest
// notification that carried one is kept for the front end to offer.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[Level]lipgloss.Style
	hint   lipgloss.Style
	last   *Action
}

func NewConsole(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w: w,
		styles: map[Level]lipgloss.Style{
			LevelInfo:    r.NewStyle().Foreground(lipgloss.Color("12")),
			LevelSuccess: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
			LevelWarning: r.NewStyle().Foreground(lipgloss.Color("11")),
			LevelError:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		},
		hint: r.NewStyle().Faint(true),
	}
}

func (c *Console) Notify(_ context.Context, n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	style, ok := c.styles[n.Level]
	if !ok {
		style = c.styles[LevelInfo]
	}

	line := style.Render("[" + n.Title + "]")
	if n.Message != "" {
		line += " " + n.Message
	}
	fmt.Fprintln(c.w, line)

	if n.Action != nil {
		c.last = n.Action
		fmt.Fprintln(c.w, c.hint.Render(fmt.Sprintf("  type %q to %s", "retry", n.Action.Label)))
	}
}

// TakeAction returns the pending action and forgets it.
func (c *Console) TakeAction() *Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.last
	c.last = nil
	return a
}
