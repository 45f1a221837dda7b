package parallel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wegman-software/lidarqc-go/internal/logger"
)

// DefaultSentinel is the folder whose presence marks an output directory as finished
const DefaultSentinel = "vrt"

// ResumeOptions describe how finished work is recognised in an output directory
type ResumeOptions struct {
	// OutputGlob matches the per-item outputs, e.g. "*.tif"
	OutputGlob string
	// Sentinel is a path inside the output directory marking the whole
	// batch complete
	Sentinel string
	// CompanionExt, when set, enables pruning: an output is only counted
	// when it is non-empty and a sibling with this extension exists.
	// Invalid outputs are deleted.
	CompanionExt string
	// Label names the batch in log lines
	Label string
	Log   *zap.Logger
}

func (o ResumeOptions) withDefaults() ResumeOptions {
	if o.OutputGlob == "" {
		o.OutputGlob = "*.tif"
	}
	if o.Sentinel == "" {
		o.Sentinel = DefaultSentinel
	}
	if o.Log == nil {
		o.Log = logger.Get()
	}
	return o
}

// Pending returns the inputs that still need processing into outputDir.
//
// A missing output directory is created and every input is pending. When
// the sentinel exists nothing is pending. Otherwise inputs whose stem
// already has an output are dropped. Calling Pending again without new
// outputs returns the same list.
func Pending(inputs []string, outputDir string, opts ResumeOptions) ([]string, error) {
	opts = opts.withDefaults()

	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		return inputs, nil
	} else if err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(outputDir, opts.Sentinel)); err == nil {
		opts.Log.Info("Sentinel found, skipping",
			zap.String("batch", opts.Label),
			zap.String("sentinel", opts.Sentinel))
		return nil, nil
	}

	outputs, err := filepath.Glob(filepath.Join(outputDir, opts.OutputGlob))
	if err != nil {
		return nil, fmt.Errorf("bad output pattern %q: %w", opts.OutputGlob, err)
	}
	if opts.CompanionExt != "" {
		if outputs, err = RemoveInvalidOutputs(outputs, opts.CompanionExt); err != nil {
			return nil, err
		}
	}

	done := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		done[Stem(o)] = true
	}

	var pending []string
	for _, in := range inputs {
		if !done[Stem(in)] {
			pending = append(pending, in)
		}
	}

	opts.Log.Info("Resuming",
		zap.String("batch", opts.Label),
		zap.Int("outputs_found", len(outputs)),
		zap.Int("pending", len(pending)),
		zap.Int("inputs", len(inputs)))
	return pending, nil
}

// RemoveInvalidOutputs deletes outputs that are empty or lack their
// companion file and returns the rest
func RemoveInvalidOutputs(outputs []string, companionExt string) ([]string, error) {
	if !strings.HasPrefix(companionExt, ".") {
		companionExt = "." + companionExt
	}

	valid := make([]string, 0, len(outputs))
	for _, o := range outputs {
		info, err := os.Stat(o)
		if err != nil {
			return nil, err
		}
		ok := info.Size() > 0
		if ok {
			companion := strings.TrimSuffix(o, filepath.Ext(o)) + companionExt
			if _, err := os.Stat(companion); err != nil {
				ok = false
			}
		}
		if !ok {
			if err := os.Remove(o); err != nil {
				return nil, fmt.Errorf("failed to remove partial output: %w", err)
			}
			continue
		}
		valid = append(valid, o)
	}
	return valid, nil
}

// MarkComplete creates the sentinel directory so later runs skip the batch
func MarkComplete(outputDir, sentinel string) error {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	return os.MkdirAll(filepath.Join(outputDir, sentinel), 0755)
}

// Stem returns the file name without directory or extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
