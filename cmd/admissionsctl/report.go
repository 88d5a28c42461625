package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)

	statusStyles = map[admission.Status]lipgloss.Style{
		admission.StatusOffered:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		admission.StatusWaitlisted: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		admission.StatusRejected:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		admission.StatusWithdrawn:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderMatchReport печатает сводку прогона и итоговые статусы по программам.
func renderMatchReport(r *matchResult) string {
	var b strings.Builder
	run := r.Run

	summary := []string{
		titleStyle.Render("Matching run " + run.ID),
		field("state", run.State.String()),
		field("rounds", strconv.Itoa(run.Rounds)),
		field("processed", strconv.Itoa(run.Processed)),
		field("offered", strconv.Itoa(run.Offered)),
		field("pending", strconv.Itoa(run.Waitlisted)),
		field("rejected", strconv.Itoa(run.Rejected)),
		field("auto-withdrawn", strconv.Itoa(run.AutoWithdrawn)),
	}
	if run.Reason != "" {
		summary = append(summary, field("reason", run.Reason))
	}
	b.WriteString(boxStyle.Render(strings.Join(summary, "\n")))
	b.WriteString("\n")

	if len(r.Final) == 0 {
		b.WriteString("\nNo applications to report.\n")
		return b.String()
	}

	programs := make(map[string]admission.Program, len(r.Programs))
	for _, p := range r.Programs {
		programs[p.ID.String()] = p
	}

	byProgram := make(map[string][]admission.Application)
	var order []string
	for _, app := range r.Final {
		id := app.ProgramID.String()
		if _, seen := byProgram[id]; !seen {
			order = append(order, id)
		}
		byProgram[id] = append(byProgram[id], app)
	}
	sort.Strings(order)

	for _, id := range order {
		p := programs[id]
		fmt.Fprintf(&b, "\n%s %s\n", titleStyle.Render(id),
			labelStyle.Render(fmt.Sprintf("(%s, %s, seats %d, need-based %d)",
				p.Criteria.Category, p.Criteria.EffectiveTier(), p.TotalSeats, p.ReservedNeedSeats)))
		b.WriteString(applicationsTable(byProgram[id]).Render())
		b.WriteString("\n")
	}
	return b.String()
}

// applicationsTable - предложения по позиции, остальные по баллу.
func applicationsTable(apps []admission.Application) *table.Table {
	sort.SliceStable(apps, func(i, j int) bool {
		pi, pj := apps[i].Position, apps[j].Position
		switch {
		case pi > 0 && pj > 0:
			return pi < pj
		case pi > 0 || pj > 0:
			return pi > 0
		}
		return apps[i].Score > apps[j].Score
	})

	rows := make([][]string, 0, len(apps))
	styles := make([]admission.Status, 0, len(apps))
	for _, app := range apps {
		pos := "-"
		if app.Position > 0 {
			pos = strconv.Itoa(app.Position)
		}
		rows = append(rows, []string{
			pos,
			app.ID,
			app.StudentID.String(),
			strconv.Itoa(app.EffectiveWishRank()),
			strconv.Itoa(app.Score),
			strconv.FormatFloat(app.WeightedAverage, 'f', 2, 64),
			app.Status.External(),
		})
		styles = append(styles, app.Status)
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "APPLICATION", "STUDENT", "WISH", "SCORE", "AVG", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			if col == 6 && row >= 0 && row < len(styles) {
				if s, ok := statusStyles[styles[row]]; ok {
					return s.Padding(0, 1)
				}
			}
			return cellStyle
		})
}

func renderCriteria(v criteriaView) string {
	lines := []string{
		titleStyle.Render("Criteria for " + displayOrDash(v.Attributes.Label)),
		field("category", v.Criteria.Category),
		field("tier", string(v.Tier)),
		field("minimum average", strconv.FormatFloat(v.Minimum, 'f', 1, 64)),
		field("fingerprint", v.Fingerprint),
	}
	out := boxStyle.Render(strings.Join(lines, "\n")) + "\n"

	rows := make([][]string, 0, len(v.Criteria.Subjects))
	for _, s := range v.Criteria.Subjects {
		rows = append(rows, []string{string(s), strconv.Itoa(v.Criteria.Weight(s))})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SUBJECT", "WEIGHT").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})
	return out + t.Render() + "\n"
}

func field(name, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-15s", name)) + " " + displayOrDash(value)
}

func displayOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
