package tui

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/admin"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
)

// Run starts the dashboard against baseURL. The event stream feeds the
// program between polls.
func Run(ctx context.Context, baseURL string, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	client := NewClient(baseURL)
	p := tea.NewProgram(newModel(client, interval), tea.WithAltScreen(), tea.WithContext(ctx))

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go follow(sctx, client, p)

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// follow forwards streamed status documents to p, reconnecting until ctx is done.
func follow(ctx context.Context, c *Client, p teaProgram) {
	log := logging.FromContext(ctx)
	for ctx.Err() == nil {
		err := c.Stream(ctx, func(st admin.StatusJSON) {
			p.Send(statusMsg{status: st})
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Debug("event stream closed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// Print writes one plain-text status table, used when stdout is not a terminal.
func Print(ctx context.Context, w io.Writer, baseURL string) error {
	st, err := NewClient(baseURL).Status(ctx)
	if err != nil {
		return err
	}
	synced := "not synced"
	if st.NTPSynced {
		synced = st.ServerTimeISO
	}
	fmt.Fprintf(w, "clock: %s  channel: %d\n", synced, st.WiFiChannel)
	for _, r := range tankRows(st) {
		fmt.Fprintf(w, "tank %-2s %-10s %-8s %-12s %s\n", r[0], r[1], r[2], r[3], r[4])
	}
	return nil
}
