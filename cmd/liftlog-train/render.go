package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
)

func clock(seconds int) string {
	return workout.FormatClock(time.Duration(seconds) * time.Second)
}

func formatSet(s models.ExerciseSet) string {
	weight := "bw"
	if s.WeightKg != nil {
		weight = strconv.FormatFloat(*s.WeightKg, 'f', -1, 64) + "kg"
	}
	out := fmt.Sprintf("%s x %d", weight, s.RepsCompleted)
	if s.RPEScore != nil {
		out += fmt.Sprintf(" @%d", *s.RPEScore)
	}
	if s.SetType != models.SetNormal && s.SetType != "" {
		out += " " + string(s.SetType)
	}
	return out
}

func printSnapshot(w io.Writer, snap workout.Snapshot) {
	if snap.Status == workout.StatusNone {
		fmt.Fprintln(w, "no workout in progress")
		return
	}
	fmt.Fprintf(w, "%s  [%s]  %s\n", snap.Session.Name, snap.Status, clock(snap.ElapsedSeconds))
	if snap.ExerciseName != "" {
		fmt.Fprintf(w, "exercise: %s  %s (total %s)\n", snap.ExerciseName, clock(snap.ExerciseSeconds), clock(snap.ExercisingSeconds))
	}
	switch snap.RestState {
	case workout.RestRunning:
		fmt.Fprintf(w, "rest: %s of %s\n", clock(snap.RestRemainingSeconds), clock(snap.RestDurationSeconds))
	case workout.RestElapsed:
		fmt.Fprintln(w, "rest: over")
	}
	printLedger(w, snap)
}

func printLedger(w io.Writer, snap workout.Snapshot) {
	v := snap.Ledger
	if len(v.Sets) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, s := range v.Sets {
		fmt.Fprintf(tw, "  %s\t%s\n", v.Labels[i], formatSet(s))
	}
	_ = tw.Flush()
	line := fmt.Sprintf("  volume %.1f kg", v.VolumeKg)
	if v.Best != nil {
		line += ", best " + formatSet(*v.Best)
	}
	fmt.Fprintln(w, line)
}

func printSessions(w io.Writer, sessions []models.WorkoutSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no finished workouts")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tNAME\tSTATUS\tDURATION\tPAUSED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04"), s.Name, s.Status,
			clock(s.TotalDurationSeconds), clock(s.PausedSeconds))
	}
	_ = tw.Flush()
}

func printRoutines(w io.Writer, routines []models.Routine, selected string) {
	if len(routines) == 0 {
		fmt.Fprintln(w, `no routines; create one with "liftlog-train routines create"`)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tEXERCISES")
	for _, r := range routines {
		mark := ""
		if r.ID.String() == selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", mark, r.ID, r.Name, len(r.Exercises))
	}
	_ = tw.Flush()
}

func printSummary(w io.Writer, periods []models.TrainingSummaryPeriod) {
	if len(periods) == 0 {
		fmt.Fprintln(w, "no workouts in range")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tSESSIONS\tDONE\tTIME\tSETS\tREPS\tTONNAGE")
	for _, p := range periods {
		sets, reps, tonnage := 0, 0, 0.0
		if p.Strength != nil {
			sets, reps, tonnage = p.Strength.WorkingSets, p.Strength.TotalReps, p.Strength.TonnageKg
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%d\t%.0f kg\n",
			p.Period, p.Sessions, p.Completed, clock(p.TotalDurationSec), sets, reps, tonnage)
	}
	_ = tw.Flush()
}
