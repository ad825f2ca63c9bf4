package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	algoviz "github.com/petal-labs/algoviz"
	"github.com/petal-labs/algoviz/activity"
	"github.com/petal-labs/algoviz/config"
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
	"github.com/petal-labs/algoviz/sound"
	"github.com/petal-labs/algoviz/sse"
	"github.com/petal-labs/algoviz/tui"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <algorithm>",
		Short: "Animate one algorithm in the terminal",
		Long: "Animate one algorithm in the terminal. The algorithm is a slug " +
			"(bubble, merge, binary, astar, ...) or a display name.",
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}

	cmd.Flags().Duration("speed", 0, "Step delay (default: per category from config)")
	cmd.Flags().Int("size", 0, "Sequence length for sorting and searching")
	cmd.Flags().IntSlice("values", nil, "Explicit sequence, e.g. --values 5,3,9")
	cmd.Flags().Int("target", 0, "Value to search for (default: a random value from the sequence)")
	cmd.Flags().Int("rows", 0, "Grid rows for pathfinding")
	cmd.Flags().Int("cols", 0, "Grid columns for pathfinding")
	cmd.Flags().StringSlice("walls", nil, "Wall cells as row:col, e.g. --walls 3:4,3:5")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 = random)")
	cmd.Flags().Bool("plain", false, "Print step events as text instead of the interactive view")
	cmd.Flags().String("format", "text", "Plain output format: text | json")
	cmd.Flags().Duration("timeout", 0, "Stop the run after this long (plain mode)")
	cmd.Flags().Bool("muted", false, "Disable sound cues")
	cmd.Flags().String("user", "", "Log this run for the given user id")
	cmd.Flags().String("server", "", "Server URL for activity logging")
	cmd.Flags().String("config", "", "Path to algoviz.yaml")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	alg, err := core.ParseAlgorithm(args[0])
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	file, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := commandLogger(cmd)

	cfg, err := buildRunConfig(cmd, alg, file)
	if err != nil {
		return err
	}
	cfg.Logger = logger

	if client := activityClient(cmd, file, logger); client != nil && cfg.UserID != "" {
		cfg.Activity = client
		defer client.Flush()
	}

	muted, _ := cmd.Flags().GetBool("muted")
	cfg.Sound = sound.NewSink(sound.NewBellPlayer(cmd.ErrOrStderr()))
	cfg.Sound.SetMuted(muted || file.Sound.Muted)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if plain, _ := cmd.Flags().GetBool("plain"); plain {
		return runPlain(ctx, cmd, alg, cfg)
	}
	return runInteractive(ctx, cmd, alg, cfg)
}

func loadConfig(cmd *cobra.Command) (config.File, error) {
	path, _ := cmd.Flags().GetString("config")
	file, _, err := config.Load(path)
	if err != nil {
		return config.File{}, exitError(exitConfig, "loading config: %v", err)
	}
	return file, nil
}

// buildRunConfig turns the flags into a controller configuration. Flags
// override the config file; anything left unset falls back to it.
func buildRunConfig(cmd *cobra.Command, alg core.Algorithm, file config.File) (algoviz.Config, error) {
	flags := cmd.Flags()
	cat := alg.Category()

	seed, _ := flags.GetUint64("seed")
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := core.NewRand(seed)

	speed, _ := flags.GetDuration("speed")
	if speed < 0 {
		return algoviz.Config{}, exitError(exitValidation, "--speed must not be negative")
	}
	if speed == 0 {
		speed = file.Delay(cat)
	}

	cfg := algoviz.Config{
		Speed:      speed,
		PathTicker: runtime.NewFixedTicker(file.Speed.PathTrace),
		Rand:       rng,
	}

	user, _ := flags.GetString("user")
	if user == "" {
		user = file.Client.UserID
	}
	cfg.UserID = user

	switch cat {
	case core.CategoryPathfinding:
		grid, err := buildGrid(cmd, file)
		if err != nil {
			return algoviz.Config{}, err
		}
		cfg.Grid = grid

	default:
		values, _ := flags.GetIntSlice("values")
		size, _ := flags.GetInt("size")
		if size < 0 {
			return algoviz.Config{}, exitError(exitValidation, "--size must not be negative")
		}
		if len(values) == 0 {
			if size == 0 {
				size = file.Sequence.SortSize
				if cat == core.CategorySearching {
					size = file.Sequence.SearchSize
				}
			}
			if alg == core.BinarySearch {
				values = core.GenerateSortedSequence(rng, size)
			} else {
				values = core.GenerateSequence(rng, size)
			}
		}
		if len(values) == 0 {
			return algoviz.Config{}, exitError(exitValidation, "the sequence is empty")
		}
		cfg.Values = values
		cfg.Size = len(values)

		if flags.Changed("target") {
			cfg.Target, _ = flags.GetInt("target")
		} else {
			cfg.Target = values[rng.IntN(len(values))]
		}
	}
	return cfg, nil
}

func buildGrid(cmd *cobra.Command, file config.File) (*core.Grid, error) {
	rows, _ := cmd.Flags().GetInt("rows")
	cols, _ := cmd.Flags().GetInt("cols")
	if rows == 0 {
		rows = file.Grid.Rows
	}
	if cols == 0 {
		cols = file.Grid.Cols
	}
	grid, err := core.NewGrid(rows, cols)
	if err != nil {
		return nil, exitError(exitValidation, "%v", err)
	}

	walls, _ := cmd.Flags().GetStringSlice("walls")
	for _, w := range walls {
		p, err := parseCell(w)
		if err != nil {
			return nil, exitError(exitValidation, "--walls: %v", err)
		}
		if !grid.InBounds(p) || p == grid.Start() || p == grid.End() {
			return nil, exitError(exitValidation, "--walls: cell %s cannot be a wall", w)
		}
		grid.SetWall(p, true)
	}
	return grid, nil
}

// parseCell reads "row:col".
func parseCell(s string) (core.Pos, error) {
	r, c, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return core.Pos{}, fmt.Errorf("cell %q is not row:col", s)
	}
	row, err := strconv.Atoi(r)
	if err != nil {
		return core.Pos{}, fmt.Errorf("cell %q: bad row: %w", s, err)
	}
	col, err := strconv.Atoi(c)
	if err != nil {
		return core.Pos{}, fmt.Errorf("cell %q: bad column: %w", s, err)
	}
	return core.Pos{Row: row, Col: col}, nil
}

func activityClient(cmd *cobra.Command, file config.File, logger *slog.Logger) *activity.Client {
	url, _ := cmd.Flags().GetString("server")
	if url == "" {
		url = file.Client.ServerURL
	}
	if url == "" {
		return nil
	}
	return activity.NewClient(activity.ClientConfig{BaseURL: url, Logger: logger})
}

// --- Plain mode ---

func runPlain(ctx context.Context, cmd *cobra.Command, alg core.Algorithm, cfg algoviz.Config) error {
	format, _ := cmd.Flags().GetString("format")
	handler, err := plainEventHandler(cmd.OutOrStdout(), format)
	if err != nil {
		return err
	}
	cfg.EventHandler = handler

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctrl, err := algoviz.NewController(cfg)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	res, _, err := ctrl.Run(ctx, algoviz.Request{Algorithm: alg})
	if err != nil {
		if errors.Is(err, runtime.ErrRunCanceled) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return exitError(exitTimeout, "run timed out after %s", timeout)
		}
		if !errors.Is(err, runtime.ErrRunCanceled) {
			return exitError(exitRuntime, "run failed: %v", err)
		}
	}
	if format == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), formatResult(res))
	}
	return nil
}

// plainEventHandler prints one line per event: text for people, the
// stream wire format for json.
func plainEventHandler(out io.Writer, format string) (runtime.EventHandler, error) {
	switch format {
	case "text":
		return func(e runtime.Event) {
			fmt.Fprintln(out, formatEvent(e))
		}, nil
	case "json":
		enc := json.NewEncoder(out)
		return func(e runtime.Event) {
			_ = enc.Encode(sse.FromEvent(e))
		}, nil
	}
	return nil, exitError(exitValidation, "unknown format %q (use text or json)", format)
}

func formatEvent(e runtime.Event) string {
	prefix := fmt.Sprintf("%4d %-14s", e.Seq, e.Kind)
	st := e.Step
	switch e.Kind {
	case runtime.EventRunStarted:
		return fmt.Sprintf("%s %s run=%s", prefix, e.Algorithm, e.RunID)
	case runtime.EventHighlight:
		if len(st.Cells) > 0 {
			return fmt.Sprintf("%s %s", prefix, formatCells(st.Cells))
		}
		return fmt.Sprintf("%s %v", prefix, st.Indices)
	case runtime.EventPivot:
		return fmt.Sprintf("%s %d", prefix, st.Pivot)
	case runtime.EventLine:
		lines := e.Algorithm.Pseudocode()
		if st.Line >= 0 && st.Line < len(lines) {
			return fmt.Sprintf("%s %d %s", prefix, st.Line, lines[st.Line])
		}
		return fmt.Sprintf("%s cleared", prefix)
	case runtime.EventCue:
		return fmt.Sprintf("%s %s", prefix, st.Cue)
	case runtime.EventRender:
		if st.Values != nil {
			return fmt.Sprintf("%s %v", prefix, st.Values)
		}
		return prefix
	case runtime.EventVisit, runtime.EventPath:
		return fmt.Sprintf("%s %s", prefix, formatCells(st.Cells))
	case runtime.EventRunFinished:
		return fmt.Sprintf("%s %s", prefix, e.Status())
	}
	return prefix
}

func formatCells(cells []core.Pos) string {
	parts := make([]string, len(cells))
	for i, p := range cells {
		parts[i] = fmt.Sprintf("(%d,%d)", p.Row, p.Col)
	}
	return strings.Join(parts, " ")
}

func formatResult(res algoviz.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s in %s\n", res.Algorithm, res.Status, res.Elapsed.Round(time.Millisecond))
	switch res.Algorithm.Category() {
	case core.CategorySorting:
		fmt.Fprintf(&sb, "  values:   %v\n", res.Values)
		fmt.Fprintf(&sb, "  compares: %d  swaps: %d", res.Stats.Compares, res.Stats.Swaps)
	case core.CategorySearching:
		if res.Found {
			fmt.Fprintf(&sb, "  found at index %d\n", res.Index)
		} else {
			sb.WriteString("  not found\n")
		}
		fmt.Fprintf(&sb, "  probes: %d", res.Stats.Probes)
	case core.CategoryPathfinding:
		if res.Found {
			fmt.Fprintf(&sb, "  path length %d\n", len(res.Path))
		} else {
			sb.WriteString("  no path\n")
		}
		fmt.Fprintf(&sb, "  visited: %d", res.Stats.Visits)
	}
	if res.Error != "" {
		fmt.Fprintf(&sb, "\n  error: %s", res.Error)
	}
	return sb.String()
}

// --- Interactive mode ---

func runInteractive(ctx context.Context, cmd *cobra.Command, alg core.Algorithm, cfg algoviz.Config) error {
	events := make(chan runtime.Event, 256)
	done := make(chan struct{})
	cfg.EventHandler = runtime.BlockingChannelEventHandler(events, done)

	ctrl, err := algoviz.NewController(cfg)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	model := tui.New(tui.Config{
		Controller: ctrl,
		Algorithm:  alg,
		Events:     events,
		Context:    gctx,
		Size:       cfg.Size,
	})
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(gctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)

	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		ctrl.Cancel()
		close(done)
		ctrl.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return exitError(exitRuntime, "terminal: %v", err)
	}
	if res, ok := ctrl.LastResult(); ok {
		fmt.Fprintln(cmd.OutOrStdout(), formatResult(res))
	}
	return nil
}

// commandLogger builds the text logger the subcommands share. --verbose
// lowers the level to debug and --quiet raises it to error.
func commandLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
