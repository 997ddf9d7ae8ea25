package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bre/mailfile/internal/vault"
)

// Run enters sess, launches the browser program, and exits the scope
// when the program returns, flushing nothing since the browser never
// writes — Exit here only releases the session lock.
func Run(ctx context.Context, sess *vault.Session, opts Options) error {
	sc, err := sess.Enter(ctx)
	if err != nil {
		return fmt.Errorf("tui: enter session: %w", err)
	}
	defer sc.Exit()

	p := tea.NewProgram(New(sc, opts), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
