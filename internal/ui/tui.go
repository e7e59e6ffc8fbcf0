package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/antirec/internal/events"
)

// Run shows the monitor until the user quits or ctx is cancelled. The hub
// subscription is released on return.
func Run(ctx context.Context, status StatusFunc, hub *events.Hub) error {
	var sub *events.Subscription
	if hub != nil {
		sub = hub.Subscribe(events.DefaultBuffer)
		defer hub.Unsubscribe(sub)
	}

	p := tea.NewProgram(NewModel(status, sub), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}
