package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/originfs/originfs/pkg/models"
)

var (
	primaryColor = lipgloss.Color("#8BE9FD")
	folderColor  = lipgloss.Color("#BD93F9")
	warnColor    = lipgloss.Color("#FFB86C")
	errorColor   = lipgloss.Color("#FF5555")
	mutedColor   = lipgloss.Color("#6272A4")

	folderStyle = lipgloss.NewStyle().Foreground(folderColor).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(mutedColor).Width(10)
	valueStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warnColor)
	errorStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// displayName renders a child name, marking folders.
func displayName(name string, folder bool) string {
	if folder {
		return folderStyle.Render(name + "/")
	}
	return name
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d", n)
	}
}

// listingTable renders a long directory listing.
func listingTable(rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		Headers("NAME", "TYPE", "SIZE", "EDITED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// statBlock renders one record as labelled lines.
func statBlock(path string, rec *models.Record) string {
	kind := "file"
	if rec.IsFolder() {
		kind = "folder"
	}
	line := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
	}
	return line("path", path) +
		line("id", rec.ID) +
		line("kind", kind) +
		line("name", rec.FileName()) +
		line("location", rec.Location) +
		line("size", formatSize(rec.Size)) +
		line("created", formatTime(rec.Created)) +
		line("edited", formatTime(rec.Edited))
}
