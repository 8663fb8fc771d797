package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
)

const replHelp = `commands:
  start [name]            start the selected routine
  pause | resume          freeze or continue the session clock
  ex <n|name>             switch to routine exercise n (1-based) or by name
  next                    finish the current exercise and move to the next
  done                    finish the current exercise
  set <kg>x<reps> [@rpe] [warmup|dropset|failure]
                          record a set; use "bw" for bodyweight
  edit <label> <kg>x<reps> [@rpe] [type]
                          change a set of the current exercise (label as shown: W1, 1, 2 ...)
  del <label>             delete a set of the current exercise
  rest [duration|preset]  start a rest countdown (default after every set)
  skip                    stop the rest countdown
  complete [duration]     finish the workout, optionally overriding its length
  cancel                  abandon the workout
  status | history | help | quit`

var errQuit = errors.New("quit")

// console executes one command line at a time against an engine. It is used
// by the interactive "train" loop and by the one-shot lifecycle commands.
type console struct {
	engine *workout.Engine
	out    io.Writer
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, replHelp)
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "status", "s":
		printSnapshot(c.out, c.engine.Snapshot())
		return nil
	case "history":
		printSessions(c.out, c.engine.History())
		return nil
	case "start":
		return c.start(ctx, strings.Join(args, " "))
	case "pause":
		if err := c.engine.Pause(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "paused")
		return nil
	case "resume":
		if err := c.engine.Resume(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "resumed")
		return nil
	case "ex":
		return c.selectExercise(strings.Join(args, " "))
	case "next":
		return c.next()
	case "done":
		added, err := c.engine.FinishExercise()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "exercise time +%s\n", workout.FormatClock(time.Duration(added)*time.Second))
		return nil
	case "set":
		return c.recordSet(ctx, args)
	case "edit":
		return c.editSet(ctx, args)
	case "del", "delete":
		return c.deleteSet(ctx, args)
	case "rest":
		return c.rest(strings.Join(args, " "))
	case "skip":
		return c.engine.SkipRest()
	case "complete", "finish":
		return c.complete(ctx, args)
	case "cancel":
		s, err := c.engine.Cancel(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "cancelled %q after %s\n", s.Name, workout.FormatClock(time.Duration(s.TotalDurationSeconds)*time.Second))
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (c *console) start(ctx context.Context, name string) error {
	routineID, ok, err := c.engine.SelectedRoutine(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(`no routine selected; run "liftlog-train select <routine>" first`)
	}
	s, err := c.engine.Start(ctx, routineID, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "started %q\n", s.Name)
	printSnapshot(c.out, c.engine.Snapshot())
	return nil
}

func (c *console) selectExercise(arg string) error {
	r := c.engine.Routine()
	if r == nil {
		return workout.ErrNoActiveSession
	}
	id, err := findExercise(r, arg)
	if err != nil {
		return err
	}
	if err := c.engine.SelectExercise(id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "now on %s\n", r.ExerciseName(id))
	return nil
}

// findExercise resolves a 1-based position or a case-insensitive name prefix.
func findExercise(r *models.Routine, arg string) (uuid.UUID, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return uuid.Nil, errors.New("which exercise?")
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(r.Exercises) {
			return uuid.Nil, fmt.Errorf("exercise %d: routine has %d exercises", n, len(r.Exercises))
		}
		return r.Exercises[n-1].ExerciseID, nil
	}
	lower := strings.ToLower(arg)
	for _, ex := range r.Exercises {
		if strings.HasPrefix(strings.ToLower(ex.Name), lower) {
			return ex.ExerciseID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("exercise %q: %w", arg, workout.ErrNotFound)
}

func (c *console) next() error {
	r := c.engine.Routine()
	if r == nil {
		return workout.ErrNoActiveSession
	}
	cur := c.engine.Snapshot().ExerciseID
	idx := -1
	for i, ex := range r.Exercises {
		if ex.ExerciseID == cur {
			idx = i
		}
	}
	if idx+1 >= len(r.Exercises) {
		return errors.New("already on the last exercise")
	}
	if _, err := c.engine.FinishExercise(); err != nil {
		return err
	}
	next := r.Exercises[idx+1]
	if err := c.engine.SelectExercise(next.ExerciseID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "now on %s\n", next.Name)
	return nil
}

func (c *console) recordSet(ctx context.Context, args []string) error {
	in, err := parseSetInput(args)
	if err != nil {
		return err
	}
	snap := c.engine.Snapshot()
	if snap.Status == workout.StatusNone {
		return workout.ErrNoActiveSession
	}
	set, err := c.engine.RecordSet(ctx, snap.ExerciseID, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "logged %s\n", formatSet(*set))
	printLedger(c.out, c.engine.Snapshot())
	return nil
}

func (c *console) editSet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: edit <label> <kg>x<reps> [@rpe] [type]")
	}
	setID, err := c.setByLabel(args[0])
	if err != nil {
		return err
	}
	in, err := parseSetInput(args[1:])
	if err != nil {
		return err
	}
	patch := workout.SetPatch{SetType: &in.SetType, Reps: &in.Reps, RPE: in.RPE, ClearRPE: in.RPE == nil}
	if in.WeightKg == nil {
		patch.ClearWeight = true
	} else {
		patch.WeightKg = in.WeightKg
	}
	set, err := c.engine.UpdateSet(ctx, setID, patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "updated %s\n", formatSet(*set))
	return nil
}

func (c *console) deleteSet(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: del <label>")
	}
	setID, err := c.setByLabel(args[0])
	if err != nil {
		return err
	}
	if err := c.engine.DeleteSet(ctx, setID); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "deleted")
	printLedger(c.out, c.engine.Snapshot())
	return nil
}

// setByLabel finds a set of the current exercise by its displayed label.
func (c *console) setByLabel(label string) (uuid.UUID, error) {
	view := c.engine.Snapshot().Ledger
	for i, l := range view.Labels {
		if strings.EqualFold(l, label) {
			return view.Sets[i].ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("set %s: %w", label, workout.ErrNotFound)
}

func (c *console) rest(arg string) error {
	if arg == "" {
		return c.engine.StartRest(c.engine.DefaultRest())
	}
	for _, p := range c.engine.RestPresets() {
		if p.Name == arg {
			return c.engine.StartRestPreset(arg)
		}
	}
	d, err := workout.ParseRestDuration(arg)
	if err != nil {
		return err
	}
	return c.engine.StartRest(d)
}

func (c *console) complete(ctx context.Context, args []string) error {
	var explicit *int
	if len(args) > 0 {
		d, err := parseLength(args[0])
		if err != nil {
			return err
		}
		secs := workout.Seconds(d)
		explicit = &secs
	}
	s, err := c.engine.Complete(ctx, explicit)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "completed %q in %s (paused %s)\n", s.Name,
		workout.FormatClock(time.Duration(s.TotalDurationSeconds)*time.Second),
		workout.FormatClock(time.Duration(s.PausedSeconds)*time.Second))
	return nil
}

// parseLength accepts "45m", "1h10m" or a clock value "52:30".
func parseLength(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return workout.ParseRestDuration(s)
}

// parseSetInput reads "<kg>x<reps>" or "<kg> <reps>", then an optional
// "@rpe" and set type. "bw" stands for a bodyweight set.
func parseSetInput(args []string) (workout.SetInput, error) {
	in := workout.SetInput{SetType: models.SetNormal}
	if len(args) == 0 {
		return in, errors.New("usage: set <kg>x<reps> [@rpe] [warmup|dropset|failure]")
	}

	rest := args[1:]
	weight, reps, ok := strings.Cut(strings.ToLower(args[0]), "x")
	if !ok {
		if len(args) < 2 {
			return in, fmt.Errorf("set %q: missing reps", args[0])
		}
		weight, reps, rest = strings.ToLower(args[0]), args[1], args[2:]
	}

	if weight != "bw" && weight != "-" {
		w, err := strconv.ParseFloat(strings.TrimSuffix(weight, "kg"), 64)
		if err != nil {
			return in, fmt.Errorf("weight %q is not a number", weight)
		}
		in.WeightKg = &w
	}
	n, err := strconv.Atoi(reps)
	if err != nil {
		return in, fmt.Errorf("reps %q is not a number", reps)
	}
	in.Reps = n

	for _, tok := range rest {
		if r, ok := strings.CutPrefix(tok, "@"); ok {
			v, err := strconv.Atoi(r)
			if err != nil {
				return in, fmt.Errorf("rpe %q is not a number", r)
			}
			in.RPE = &v
			continue
		}
		st, err := models.ParseSetType(strings.ToUpper(tok))
		if err != nil {
			return in, err
		}
		in.SetType = st
	}
	return in, nil
}
