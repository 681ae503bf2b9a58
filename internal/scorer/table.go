package scorer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	rowStyle    = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Table renders sc as a human-readable fixed-width table, in the
// header/divider/rows shape the teacher's own TUI table component
// uses for static data.
func (sc Scorecard) Table() string {
	headers := []string{"Category", "Earned", "Max"}
	rows := [][]string{}
	for _, c := range sc.Categories {
		rows = append(rows, []string{displayName(c.Name), strconv.Itoa(c.Earned), strconv.Itoa(c.Max)})
	}
	rows = append(rows, []string{"TOTAL", strconv.Itoa(sc.Total), strconv.Itoa(sc.Max)})

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		widths[i] += 2
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("probar scorecard"))
	sb.WriteString("\n")

	for i, h := range headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
		if i < len(headers)-1 {
			sb.WriteString(mutedStyle.Render("|"))
		}
	}
	sb.WriteString("\n")

	total := 0
	for _, w := range widths {
		total += w
	}
	total += len(headers) - 1
	sb.WriteString(mutedStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			sb.WriteString(rowStyle.Width(widths[i]).Render(cell))
			if i < len(row)-1 {
				sb.WriteString(mutedStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\ngrade: %s", sc.Grade))
	if sc.Capped {
		sb.WriteString(fmt.Sprintf(" (capped from %s — no runtime-evidence artifact found)", sc.RawGrade))
	}
	sb.WriteString("\n")

	if len(sc.Recommendations) > 0 {
		sb.WriteString("\nrecommendations:\n")
		for _, r := range sc.Recommendations {
			sb.WriteString(fmt.Sprintf("  %s: +%d points available\n", displayName(r.Category), r.PotentialPoints))
		}
	}

	return sb.String()
}

// jsonCategory and jsonReport mirror spec.md §4.8's JSON output shape:
// total, max, grade, categories[], recommendations[].
type jsonCategory struct {
	Name   string `json:"name"`
	Earned int    `json:"earned"`
	Max    int    `json:"max"`
}

type jsonRecommendation struct {
	Category        string `json:"category"`
	PotentialPoints int    `json:"potential_points"`
}

type jsonReport struct {
	Total           int                  `json:"total"`
	Max             int                  `json:"max"`
	Grade           string               `json:"grade"`
	RawGrade        string               `json:"raw_grade"`
	Capped          bool                 `json:"capped"`
	Categories      []jsonCategory       `json:"categories"`
	Recommendations []jsonRecommendation `json:"recommendations"`
}

// JSON renders sc per spec.md §4.8's structured JSON output format.
func (sc Scorecard) JSON() ([]byte, error) {
	out := jsonReport{
		Total:    sc.Total,
		Max:      sc.Max,
		Grade:    sc.Grade,
		RawGrade: sc.RawGrade,
		Capped:   sc.Capped,
	}
	for _, c := range sc.Categories {
		out.Categories = append(out.Categories, jsonCategory{Name: c.Name, Earned: c.Earned, Max: c.Max})
	}
	for _, r := range sc.Recommendations {
		out.Recommendations = append(out.Recommendations, jsonRecommendation{Category: r.Category, PotentialPoints: r.PotentialPoints})
	}
	return json.MarshalIndent(out, "", "  ")
}

func displayName(category string) string {
	return strings.ReplaceAll(category, "_", " ")
}
