package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportTranscript appends a finished game's full record to a text file.
func ExportTranscript(t Transcript, filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(renderTranscript(t, fileExists)); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func renderTranscript(t Transcript, separate bool) string {
	var sb strings.Builder
	if separate {
		sb.WriteString("\n\n") // spacing between sessions
	}
	sb.WriteString(fmt.Sprintf("GPTmafia Game - Session %s\n", t.Code))
	sb.WriteString(fmt.Sprintf("Started: %s\n", t.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString("Players:\n")
	for _, p := range t.Players {
		status := "alive"
		if !p.Alive {
			status = "dead"
		}
		kind := ""
		if p.Human {
			kind = ", human"
		} else if p.Model != "" {
			kind = ", " + p.Model
		}
		sb.WriteString(fmt.Sprintf("- %s: %s (%s%s)\n", p.Name, p.Role, status, kind))
	}
	sb.WriteString("\n")

	for _, e := range t.Events {
		if e.Kind == EventPhase {
			sb.WriteString(strings.Repeat("-", 40) + "\n")
		}
		line := Describe(e)
		switch e.Kind {
		case EventAction:
			line += " (private)"
		case EventInspection:
			line += fmt.Sprintf(" (to %s)", e.Actor)
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Winner: %s\n", t.Winner))
	sb.WriteString(fmt.Sprintf("Exported at %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("=", 50) + "\n")
	return sb.String()
}
