package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/stats"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorTitle   = lipgloss.Color("51")
	colorBorder  = lipgloss.Color("62")
	colorLabel   = lipgloss.Color("147")
	colorDim     = lipgloss.Color("240")
	colorValue   = lipgloss.Color("252")
	colorOffline = lipgloss.Color("196")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	labelStyle   = lipgloss.NewStyle().Foreground(colorLabel).Width(14)
	valueStyle   = lipgloss.NewStyle().Foreground(colorValue).Width(11).Align(lipgloss.Right)
	headerStyle  = lipgloss.NewStyle().Foreground(colorDim).Width(11).Align(lipgloss.Right)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	offlineStyle = lipgloss.NewStyle().Foreground(colorOffline)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

// renderLatest prints one line per sensor with its instantaneous values.
func renderLatest(w io.Writer, latest stats.Latest) {
	var b strings.Builder
	b.WriteString(dimStyle.Render(latest.TakenAt.Format("15:04:05")))
	b.WriteString("\n")

	for _, s := range latest.Sensors {
		b.WriteString(labelStyle.Render(s.Sensor.Name))
		if !s.Online {
			reason := strings.ToLower(string(s.Status))
			if s.Err != "" {
				reason += ": " + s.Err
			}
			b.WriteString(offlineStyle.Render(reason))
			b.WriteString("\n")
			continue
		}
		b.WriteString(valueStyle.Render(fmt.Sprintf("%.3f V", s.Reading.Voltage)))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%.3f A", s.Reading.Current)))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%.3f W", s.Reading.Power)))
		b.WriteString("\n")
	}

	b.WriteString(labelStyle.Render("Total"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.3f V", latest.Total.Voltage)))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.3f A", latest.Total.Current)))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.3f W", latest.Total.Power)))

	fmt.Fprintln(w, b.String())
}

func formatValue(v float64, empty bool) string {
	if empty {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

func statsRow(name string, v stats.View) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render(name),
		valueStyle.Render(formatValue(v.Min, v.Empty())),
		valueStyle.Render(formatValue(v.Max, v.Empty())),
		valueStyle.Render(formatValue(v.Avg, v.Empty())),
		valueStyle.Render(fmt.Sprintf("%.3f", v.Total)),
		valueStyle.Render(fmt.Sprintf("%d", v.Count)),
	)
}

// renderStats prints the power statistics of every sensor and the total
// inside a bordered box.
func renderStats(w io.Writer, title string, snap stats.Snapshot) {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render(""),
		headerStyle.Render("min W"),
		headerStyle.Render("max W"),
		headerStyle.Render("avg W"),
		headerStyle.Render("energy J"),
		headerStyle.Render("samples"),
	)

	rows := []string{
		titleStyle.Render(fmt.Sprintf("%s (%s, %d ticks)", title, snap.Elapsed().Round(time.Millisecond), snap.Ticks)),
		header,
	}
	for _, s := range snap.Sensors {
		row := statsRow(s.Sensor.Name, s.Power)
		if s.Failures > 0 {
			row += offlineStyle.Render(fmt.Sprintf("  %d failed", s.Failures))
		}
		rows = append(rows, row)
	}
	rows = append(rows, statsRow("Total", snap.Total.Power))

	fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

// renderJSON writes v as a single JSON line.
func renderJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
