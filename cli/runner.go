// Command execution for CLI commands.
//
// Information Hiding:
// - Session wiring (simulator, resolution service, journal) hidden
// - Project versus bare file input detection hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/richinex/cutsim/config"
	"github.com/richinex/cutsim/cutsim"
	"github.com/richinex/cutsim/model"
	"github.com/richinex/cutsim/project"
	"github.com/richinex/cutsim/resolve"
	"github.com/richinex/cutsim/stl"
	"github.com/richinex/cutsim/storage"
	"github.com/richinex/cutsim/surface"
	"github.com/richinex/cutsim/task"
)

// Options holds CLI execution options.
type Options struct {
	Settings config.Settings
	Verbose  bool
	Logger   *slog.Logger
	Out      io.Writer // defaults to stdout
}

func (o Options) out() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// NewLogger returns a text logger on w at level; verbose forces debug.
func NewLogger(w io.Writer, level slog.Level, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SimulateOptions holds the simulate command's flags.
type SimulateOptions struct {
	Time   float64 // seconds, <= 0 for the whole path
	Reduce bool
	Out    string // STL output path, empty to skip
}

// Toolpath builds the tool path of a project file or of bare program files
// and prints a summary. toolsPath optionally names a JSON tool table for
// bare files.
func Toolpath(ctx context.Context, args []string, toolsPath string, opts Options) error {
	files, tools, err := loadInputs(args, toolsPath)
	if err != nil {
		return err
	}

	j, closeJournal := openJournal(opts)
	defer closeJournal()

	cs := newSimulator(opts)
	stop := context.AfterFunc(ctx, cs.Interrupt)
	defer stop()

	path := cs.ComputeToolPath(tools, files)
	report := cs.LastBuild()
	journalBuild(ctx, opts, j, report)

	printBuild(opts.out(), report, path, opts.Verbose)
	if report.Err != nil {
		return fmt.Errorf("tool path incomplete: %w", report.Err)
	}
	return nil
}

// Simulate builds a project's tool path, resolves its surface and
// optionally reduces and exports it.
func Simulate(ctx context.Context, projectPath string, sopts SimulateOptions, opts Options) error {
	proj, err := project.Load(projectPath)
	if err != nil {
		return err
	}

	j, closeJournal := openJournal(opts)
	defer closeJournal()

	cs := newSimulator(opts)
	stop := context.AfterFunc(ctx, cs.Interrupt)
	defer stop()

	path := cs.ComputeToolPathForProject(proj)
	report := cs.LastBuild()
	journalBuild(ctx, opts, j, report)
	printBuild(opts.out(), report, path, opts.Verbose)
	if report.Interrupted {
		// Cancellation is a normal outcome; the partial build is journaled.
		return nil
	}

	sim := proj.Simulation(path, sopts.Time, opts.Settings.Simulation.ResolutionMode)

	svc, err := newService(cs, j, opts)
	if err != nil {
		return err
	}

	res := <-svc.Resolve(ctx, resolve.Request{Filename: proj.Path, Simulation: sim})
	svc.Wait()
	if !res.OK() {
		if errors.Is(res.Failure, task.ErrInterrupted) {
			fmt.Fprintln(opts.out(), "Surface: interrupted")
			return nil
		}
		if res.Failure != nil {
			return fmt.Errorf("no surface produced: %w", res.Failure)
		}
		return errors.New("no surface produced")
	}

	w := opts.out()
	fmt.Fprintf(w, "Surface: %d triangles from %s in %s (hash %s)\n",
		res.Surface.Count(), res.Source, res.Elapsed.Round(time.Millisecond), res.Hash)
	if opts.Verbose {
		fmt.Fprintf(w, "  Lookup: %s\n", res.Lookup)
		fmt.Fprintf(w, "  Trace: %s\n", joinStates(res.Trace))
		fmt.Fprintf(w, "  Resolution: %.4g mm\n", sim.Resolution)
	}

	if sopts.Reduce {
		rr, err := cs.ReduceSurface(res.Surface)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Reduced: %d -> %d triangles (%.1f%%) in %s\n",
			rr.Start, rr.End, rr.Percent, rr.Elapsed.Round(time.Millisecond))
	}

	if sopts.Out != "" {
		if err := exportSurface(sopts.Out, res.Hash, filepath.Base(projectPath), res.Surface); err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote %s\n", sopts.Out)
	}
	return nil
}

// History prints the most recent journal entries.
func History(ctx context.Context, limit int, opts Options) error {
	if opts.Settings.Journal == "" {
		return errors.New("journal disabled (CUTSIM_JOURNAL is empty)")
	}
	j, err := storage.OpenJournal(opts.Settings.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	builds, err := j.ListBuilds(ctx, limit)
	if err != nil {
		return err
	}
	resolutions, err := j.ListResolutions(ctx, limit)
	if err != nil {
		return err
	}

	w := opts.out()
	fmt.Fprintf(w, "Builds (%d):\n", len(builds))
	for _, b := range builds {
		status := "ok"
		switch {
		case b.Interrupted:
			status = "interrupted"
		case b.Error != "":
			status = "error: " + truncateString(b.Error, maxErrorLen)
		}
		fmt.Fprintf(w, "  %s  %s  %d files, %d moves, %.1fs  %s\n",
			b.CreatedAt.Format(time.DateTime), shortID(b.ID), b.FilesRun, b.Moves, b.Duration, status)
	}
	fmt.Fprintf(w, "Resolutions (%d):\n", len(resolutions))
	for _, r := range resolutions {
		line := fmt.Sprintf("  %s  %s  %s  %-7s  %-11s  %d triangles  %s",
			r.CreatedAt.Format(time.DateTime), shortID(r.ID), r.Hash, r.Source, r.Lookup, r.Triangles, r.Elapsed)
		if r.Error != "" {
			line += "  error: " + truncateString(r.Error, maxErrorLen)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func newSimulator(opts Options) *cutsim.CutSim {
	return cutsim.New(opts.Settings.Simulation, cutsim.WithLogger(opts.logger()))
}

func newService(cs *cutsim.CutSim, j *storage.Journal, opts Options) (*resolve.Service, error) {
	s := opts.Settings
	svcOpts := []resolve.ServiceOption{
		resolve.WithServiceLogger(opts.logger()),
		resolve.WithMemoryCache(s.Cache.MemoryEntries),
		resolve.WithServiceSurfaceOptions(surface.WithReducer(surface.ClusterReducer{Factor: cs.Config().ReduceFactor})),
	}
	if s.Cache.Write {
		svcOpts = append(svcOpts, resolve.WithWriteBack(s.Cache.Compress))
	}
	if j != nil {
		svcOpts = append(svcOpts, resolve.WithJournal(j))
	}
	return resolve.NewService(cs, cs.Task(), svcOpts...)
}

// openJournal opens the configured journal. A journal that cannot be opened
// is logged and skipped; the returned close function is always safe to call.
func openJournal(opts Options) (*storage.Journal, func()) {
	path := opts.Settings.Journal
	if path == "" {
		return nil, func() {}
	}
	j, err := storage.OpenJournal(path)
	if err != nil {
		opts.logger().Warn("journal unavailable", "path", path, "error", err)
		return nil, func() {}
	}
	return j, func() { j.Close() }
}

// loadInputs accepts either a single project file or program files plus an
// optional tool table.
func loadInputs(args []string, toolsPath string) ([]string, *model.ToolTable, error) {
	if len(args) == 0 {
		return nil, nil, errors.New("no input files")
	}
	if len(args) == 1 && strings.EqualFold(filepath.Ext(args[0]), ".json") {
		proj, err := project.Load(args[0])
		if err != nil {
			return nil, nil, err
		}
		return proj.FilePaths(), proj.ToolTable(), nil
	}

	tools := model.NewToolTable()
	if toolsPath != "" {
		data, err := os.ReadFile(toolsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading tool table: %w", err)
		}
		if err := json.Unmarshal(data, tools); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", toolsPath, err)
		}
	}
	return args, tools, nil
}

func journalBuild(ctx context.Context, opts Options, j *storage.Journal, report cutsim.BuildReport) {
	if j == nil {
		return
	}
	rec := storage.BuildRecord{
		Files:       report.Files,
		FilesRun:    len(report.Run),
		Skipped:     len(report.Skipped),
		Moves:       report.Moves,
		Duration:    report.Duration,
		Elapsed:     report.Elapsed,
		Interrupted: report.Interrupted,
	}
	if report.Err != nil {
		rec.Error = report.Err.Error()
	}
	if _, err := j.RecordBuild(context.WithoutCancel(ctx), rec); err != nil {
		opts.logger().Warn("journal write failed", "error", err)
	}
}

func exportSurface(path string, hash model.Hash, name string, s surface.Surface) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := stl.Write(f, stl.Header{Name: name, Hash: hash}, s.Triangles()); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func printBuild(w io.Writer, report cutsim.BuildReport, path *model.ToolPath, verbose bool) {
	fmt.Fprintf(w, "Tool path: %d moves from %d files, %.1fs machining time (built in %s)\n",
		path.Len(), len(report.Run), report.Duration, report.Elapsed.Round(time.Millisecond))
	for _, f := range report.Skipped {
		fmt.Fprintf(w, "  skipped missing %s\n", f)
	}
	if report.Interrupted {
		fmt.Fprintln(w, "  interrupted")
	}
	if report.Err != nil {
		fmt.Fprintf(w, "  error: %v\n", report.Err)
	}
	if verbose && path.Len() > 0 {
		b := path.Bounds()
		fmt.Fprintf(w, "  bounds: %v .. %v\n", b.Min, b.Max)
		fmt.Fprintf(w, "  tools: %v\n", usedTools(path))
	}
}

func usedTools(path *model.ToolPath) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, m := range path.Moves() {
		if !seen[m.Tool] {
			seen[m.Tool] = true
			ids = append(ids, m.Tool)
		}
	}
	return ids
}

func joinStates(states []resolve.State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = s.String()
	}
	return strings.Join(parts, " -> ")
}

const maxErrorLen = 120

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
