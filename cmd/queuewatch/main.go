package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fleetpush/cmd/queuewatch/ui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	dbPath := flag.String("db", filepath.Join(os.TempDir(), "fleetpush", "agent.db"), "Path to the agent database")
	interval := flag.Duration("interval", time.Second, "Refresh interval")
	flag.Parse()

	src, err := ui.OpenDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	p := tea.NewProgram(ui.NewModel(src, *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "queuewatch:", err)
		os.Exit(1)
	}
}
