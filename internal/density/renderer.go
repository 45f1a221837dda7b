package density

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/lidarqc-go/internal/extract"
	"github.com/wegman-software/lidarqc-go/internal/logger"
	"github.com/wegman-software/lidarqc-go/internal/parallel"
)

// Renderer writes one density raster per tile
type Renderer struct {
	Runner  extract.Runner
	Tools   extract.Tools
	Workers int
	Log     *zap.Logger
}

// NewRenderer creates a renderer using the global logger
func NewRenderer(runner extract.Runner, tools extract.Tools, workers int) *Renderer {
	return &Renderer{Runner: runner, Tools: tools, Workers: workers, Log: logger.Named("density")}
}

// Result summarises one filter's batch
type Result struct {
	Filter    Filter
	OutputDir string
	Pending   int
	Rendered  []string
	Errors    []parallel.ErrorInfo[string]
	ErrorsCSV string // Set when errors were written
}

// RenderTile renders one tile into outDir and returns the raster path
func (r *Renderer) RenderTile(ctx context.Context, f Filter, input, outDir string) (string, error) {
	output := filepath.Join(outDir, parallel.Stem(input)+".tif")

	var cmd extract.Cmd
	if f.UsesLasgrid() {
		cmd = extract.Cmd{Name: r.Tools.Lasgrid, Args: LasgridArgs(input, output)}
	} else {
		pipelineJSON, err := PipelineJSON(f, input, output)
		if err != nil {
			return "", err
		}
		cmd = extract.Cmd{Name: r.Tools.Pdal, Args: []string{"pipeline", "--stdin"}, Stdin: bytes.NewReader(pipelineJSON)}
	}

	res, err := r.Runner.Run(ctx, cmd)
	if err != nil {
		return "", &extract.ExtractionError{Path: input, Tool: cmd.Name, Stderr: string(res.Stderr), Err: err}
	}
	if len(bytes.TrimSpace(res.Stderr)) > 0 && !extract.IsToolNotice(res.Stderr) {
		return "", &extract.ExtractionError{Path: input, Tool: cmd.Name, Stderr: string(res.Stderr)}
	}
	return output, nil
}

// Render renders every pending tile of files for one filter into
// <pcDir>/<filter>_raster. Tiles already rendered by an earlier run are
// skipped; a batch finishing without errors is marked complete.
func (r *Renderer) Render(ctx context.Context, f Filter, files []string, pcDir string) (*Result, error) {
	log := r.Log
	if log == nil {
		log = logger.Named("density")
	}
	start := time.Now()

	res := &Result{Filter: f, OutputDir: filepath.Join(pcDir, f.OutputDir())}

	opts := parallel.ResumeOptions{OutputGlob: "*.tif", Label: string(f), Log: log}
	if f.UsesLasgrid() {
		opts.CompanionExt = ".tfw"
	}
	pending, err := parallel.Pending(files, res.OutputDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to resume %s: %w", f, err)
	}
	res.Pending = len(pending)
	if len(pending) == 0 {
		return res, nil
	}

	log.Info(fmt.Sprintf("Creating %s density rasters now...", f), zap.Int("tiles", len(pending)))
	res.Rendered, res.Errors = parallel.Run(ctx, pending, func(ctx context.Context, in string) (string, error) {
		return r.RenderTile(ctx, f, in, res.OutputDir)
	}, parallel.Options{
		Workers:   r.Workers,
		ExtraArgs: extraArgs(f, res.OutputDir),
		Label:     string(f),
		Log:       log,
	})

	if len(res.Errors) > 0 {
		res.ErrorsCSV = filepath.Join(res.OutputDir, string(f)+"_errors.csv")
		if err := parallel.WriteErrorsCSV(res.ErrorsCSV, res.Errors); err != nil {
			return res, err
		}
		log.Error(fmt.Sprintf("%d errors while creating %s density rasters, writing errors to %s",
			len(res.Errors), f, filepath.Base(res.ErrorsCSV)))
	} else if err := parallel.MarkComplete(res.OutputDir, parallel.DefaultSentinel); err != nil {
		return res, err
	}

	log.Info("Density rasters finished",
		zap.String("filter", string(f)),
		zap.Int("rendered", len(res.Rendered)),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", time.Since(start).Round(time.Second)))
	return res, nil
}

func extraArgs(f Filter, outDir string) map[string]string {
	args := map[string]string{"output_dir": outDir}
	if f.UsesLasgrid() {
		return args
	}
	args["dimension"] = f.Dimension()
	args["output_type"] = f.OutputType()
	if w := f.Where(); w != "" {
		args["where_statement"] = w
	}
	return args
}

// Describe lists filters with their pdal expressions for --help output
func Describe() string {
	var b strings.Builder
	for _, n := range Names() {
		f := Filter(n)
		switch {
		case f == Common:
			fmt.Fprintf(&b, "  %-22s %s\n", n, joinFilters(CommonFilters))
		case f == CommonNoFlag:
			fmt.Fprintf(&b, "  %-22s %s\n", n, joinFilters(CommonNoFlagFilters))
		case f.UsesLasgrid():
			fmt.Fprintf(&b, "  %-22s first return density (lasgrid)\n", n)
		case f.Where() == "":
			fmt.Fprintf(&b, "  %-22s all points (%s %s)\n", n, f.Dimension(), f.OutputType())
		default:
			fmt.Fprintf(&b, "  %-22s %s\n", n, f.Where())
		}
	}
	return b.String()
}

func joinFilters(fs []Filter) string {
	s := make([]string, len(fs))
	for i, f := range fs {
		s[i] = string(f)
	}
	return strings.Join(s, ", ")
}
