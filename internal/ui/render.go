package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vzcode/vzsync/internal/journal"
	"github.com/vzcode/vzsync/internal/reconcile"
)

var actionSymbols = map[reconcile.Action]string{
	reconcile.ActionCreate: "+",
	reconcile.ActionUpdate: "~",
	reconcile.ActionRename: ">",
	reconcile.ActionDelete: "-",
}

// RenderStep formats one planned step, e.g. "+ create src/main.go".
func RenderStep(s reconcile.Step) string {
	line := actionSymbols[s.Action] + " " + s.String()
	switch s.Action {
	case reconcile.ActionCreate:
		return RenderPass(line)
	case reconcile.ActionDelete:
		return RenderFail(line)
	case reconcile.ActionRename:
		return RenderAccent(line)
	default:
		return RenderWarn(line)
	}
}

// RenderPlan formats steps one per line, followed by a count summary.
func RenderPlan(steps []reconcile.Step) string {
	if len(steps) == 0 {
		return RenderMuted("nothing to do")
	}
	var b strings.Builder
	counts := make(map[reconcile.Action]int)
	for _, s := range steps {
		b.WriteString(RenderStep(s))
		b.WriteByte('\n')
		counts[s.Action]++
	}
	b.WriteString(RenderBold(summary(len(steps), counts)))
	return b.String()
}

// RenderResult formats the outcome of an applied pass.
func RenderResult(res *reconcile.Result) string {
	var b strings.Builder
	for _, o := range res.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(&b, "%s %s: %v\n", RenderFail("✗"), o.Step, o.Err)
		} else {
			fmt.Fprintf(&b, "%s %s\n", RenderPass("✓"), o.Step)
		}
	}
	failed := len(res.Failures())
	line := fmt.Sprintf("%d applied, %d failed in %s", len(res.Outcomes)-failed, failed, res.Duration.Round(time.Microsecond))
	if failed > 0 {
		b.WriteString(RenderWarn(line))
	} else {
		b.WriteString(RenderPass(line))
	}
	return b.String()
}

func summary(total int, counts map[reconcile.Action]int) string {
	return fmt.Sprintf("%d steps: %d create, %d update, %d rename, %d delete",
		total,
		counts[reconcile.ActionCreate],
		counts[reconcile.ActionUpdate],
		counts[reconcile.ActionRename],
		counts[reconcile.ActionDelete])
}

// RenderPasses formats journal passes as a table.
func RenderPasses(passes []journal.Pass) string {
	if len(passes) == 0 {
		return RenderMuted("no passes recorded")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(MutedStyle).
		Headers("ID", "STARTED", "DURATION", "STEPS", "C", "U", "R", "D", "FAILED").
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			if col == 8 && row >= 0 && row < len(passes) && passes[row].Failures > 0 {
				return s.Foreground(ColorFail)
			}
			return s
		})
	for _, p := range passes {
		t.Row(
			strconv.FormatInt(p.ID, 10),
			p.StartedAt.Local().Format("2006-01-02 15:04:05"),
			p.Duration.Round(time.Microsecond).String(),
			strconv.Itoa(p.Steps),
			strconv.Itoa(p.Creates),
			strconv.Itoa(p.Updates),
			strconv.Itoa(p.Renames),
			strconv.Itoa(p.Deletes),
			strconv.Itoa(p.Failures),
		)
	}
	return t.String()
}

// RenderFailures formats failed steps one per line.
func RenderFailures(failures []journal.Failure) string {
	if len(failures) == 0 {
		return RenderPass("no failures")
	}
	var b strings.Builder
	for i, f := range failures {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := f.Path
		if f.Dir {
			name += "/"
		}
		if f.From != "" {
			name = f.From + " -> " + name
		}
		fmt.Fprintf(&b, "%s %s %s %s",
			RenderMuted(f.StartedAt.Local().Format("15:04:05")),
			RenderFail(f.Action),
			name,
			RenderMuted(f.Error))
	}
	return b.String()
}
