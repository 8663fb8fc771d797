package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	liftmcp "github.com/claude/liftlog/internal/mcp"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// withApp opens the app for the duration of one command.
func withApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd, args)
	}
}

var routineExercises []string

var routinesCmd = &cobra.Command{
	Use:   "routines",
	Short: "List your routines",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		routines, err := a.client.ListRoutines(ctx, a.userID)
		if err != nil {
			return err
		}
		selected := ""
		if id, ok, err := a.state.Get(ctx, a.userID); err == nil && ok {
			selected = id.String()
		}
		printRoutines(cmd.OutOrStdout(), routines, selected)
		return nil
	}),
}

var routinesCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a routine",
	Long: `Create a routine from an ordered list of exercises.

Examples:
  liftlog-train routines create "Push Day" -e "Bench Press:4x8" -e "Overhead Press:3x10" -e Dips`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		r := &models.Routine{UserID: a.userID, Name: args[0]}
		for _, entry := range routineExercises {
			ex, err := parseRoutineExercise(entry)
			if err != nil {
				return err
			}
			r.Exercises = append(r.Exercises, ex)
		}
		if err := a.client.CreateRoutine(ctx, a.userID, r); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", r.Name, r.ID)
		return nil
	}),
}

var routinesDeleteCmd = &cobra.Command{
	Use:   "delete ROUTINE",
	Short: "Delete a routine by id or name",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		r, err := findRoutine(ctx, a, args[0])
		if err != nil {
			return err
		}
		if err := a.client.DeleteRoutine(ctx, a.userID, r.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", r.Name)
		return nil
	}),
}

// parseRoutineExercise reads "Name" or "Name:SETSxREPS".
func parseRoutineExercise(entry string) (models.RoutineExercise, error) {
	name, target, _ := strings.Cut(entry, ":")
	ex := models.RoutineExercise{Name: strings.TrimSpace(name)}
	if ex.Name == "" {
		return ex, fmt.Errorf("exercise %q has no name", entry)
	}
	if target != "" {
		if _, err := fmt.Sscanf(strings.ToLower(target), "%dx%d", &ex.TargetSets, &ex.TargetReps); err != nil {
			return ex, fmt.Errorf("exercise %q: target must look like 3x8", entry)
		}
	}
	return ex, nil
}

// findRoutine resolves a routine id, or a case-insensitive name.
func findRoutine(ctx context.Context, a *app, arg string) (*models.Routine, error) {
	if id, err := uuid.Parse(arg); err == nil {
		return a.client.GetRoutine(ctx, a.userID, id)
	}
	routines, err := a.client.ListRoutines(ctx, a.userID)
	if err != nil {
		return nil, err
	}
	for i := range routines {
		if strings.EqualFold(routines[i].Name, arg) {
			return &routines[i], nil
		}
	}
	return nil, fmt.Errorf("routine %q: %w", arg, workout.ErrNotFound)
}

var selectCmd = &cobra.Command{
	Use:   "select ROUTINE",
	Short: "Pick the routine the next workout starts from",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		r, err := findRoutine(ctx, a, args[0])
		if err != nil {
			return err
		}
		e, err := a.engine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		selected, err := e.SelectRoutine(ctx, r.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "selected %s (%d exercises)\n", selected.Name, len(selected.Exercises))
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the workout in progress",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		e, err := a.engine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		out := cmd.OutOrStdout()
		printSnapshot(out, e.Snapshot())
		if id, ok, err := e.SelectedRoutine(ctx); err == nil && ok {
			if r, err := a.client.GetRoutine(ctx, a.userID, id); err == nil {
				fmt.Fprintf(out, "selected routine: %s\n", r.Name)
			}
		}
		return nil
	}),
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run an interactive workout console",
	Long:  "Run an interactive workout console. A workout left in progress on the server is picked up where it stopped.\n\n" + replHelp,
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		e, err := a.engine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		out := &lockedWriter{w: cmd.OutOrStdout()}
		go func() {
			if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("engine ticker stopped", "error", err)
			}
		}()
		go announceRest(ctx, e, out)

		printSnapshot(out, e.Snapshot())
		c := &console{engine: e, out: out}
		in := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "> ")
			if !in.Scan() {
				fmt.Fprintln(out)
				return in.Err()
			}
			err := c.exec(ctx, in.Text())
			switch {
			case errors.Is(err, errQuit):
				return nil
			case err != nil:
				fmt.Fprintln(out, "error:", err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	}),
}

// lockedWriter serializes writes from the console loop and the rest
// announcer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// announceRest prints a line when a rest countdown runs out.
func announceRest(ctx context.Context, e *workout.Engine, out io.Writer) {
	for ev := range e.Subscribe(ctx) {
		if ev.Type == workout.EventRestChanged && ev.Payload.RestState == workout.RestElapsed {
			fmt.Fprintf(out, "\nrest over (%s)\n> ", clock(ev.Payload.RestDurationSeconds))
		}
	}
}

// lifecycleCmds are one-shot versions of the console commands. Each loads the
// live session from the server, applies one command and exits.
func lifecycleCmds() []*cobra.Command {
	one := func(name, short string, args cobra.PositionalArgs) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: short,
			Args:  args,
			RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
				e, err := a.engine(ctx)
				if err != nil {
					return err
				}
				defer e.Close()
				c := &console{engine: e, out: cmd.OutOrStdout()}
				return c.exec(ctx, strings.Join(append([]string{name}, args...), " "))
			}),
		}
	}
	return []*cobra.Command{
		one("start", "Start the selected routine", cobra.ArbitraryArgs),
		one("pause", "Pause the workout", cobra.NoArgs),
		one("resume", "Resume a paused workout", cobra.NoArgs),
		one("complete", "Finish the workout", cobra.MaximumNArgs(1)),
		one("cancel", "Abandon the workout", cobra.NoArgs),
	}
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently finished workouts",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		sessions, err := a.client.RecentSessions(ctx, a.userID, historyLimit)
		if err != nil {
			return err
		}
		printSessions(cmd.OutOrStdout(), sessions)
		return nil
	}),
}

var (
	summaryBucket string
	summaryDays   int
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show training volume per period",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		bucket, err := models.ParseSummaryBucket(summaryBucket)
		if err != nil {
			return err
		}
		end := time.Now()
		start := end.AddDate(0, 0, -summaryDays)
		periods, err := a.client.GetTrainingSummary(ctx, start, end, bucket, a.userID)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), periods)
		return nil
	}),
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve your workout history to an MCP client over stdio",
	Args:  cobra.NoArgs,
	RunE: withApp(func(_ context.Context, a *app, _ *cobra.Command, _ []string) error {
		s := liftmcp.New(a.client, Version, a.log)
		return mcpserver.ServeStdio(s, mcpserver.WithStdioContextFunc(func(ctx context.Context) context.Context {
			return liftmcp.WithUserID(ctx, a.userID)
		}))
	}),
}

func init() {
	routinesCreateCmd.Flags().StringArrayVarP(&routineExercises, "exercise", "e", nil,
		`exercise in order, "Name" or "Name:SETSxREPS" (repeatable)`)
	_ = routinesCreateCmd.MarkFlagRequired("exercise")
	routinesCmd.AddCommand(routinesCreateCmd, routinesDeleteCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", workout.DefaultHistoryLimit, "number of workouts")
	summaryCmd.Flags().StringVarP(&summaryBucket, "bucket", "b", "week", "period size: day, week, month or year")
	summaryCmd.Flags().IntVarP(&summaryDays, "days", "d", 90, "days to look back")
}
