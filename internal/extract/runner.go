package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Cmd is one external tool invocation
type Cmd struct {
	Name  string
	Args  []string
	Stdin io.Reader
	Dir   string
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the captured output streams of a finished tool
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes external tools. A non-nil error means the process could
// not be started or exited non-zero; the captured streams are returned either way.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// ExecRunner runs tools as child processes
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmd Cmd) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		return res, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return res, nil
}

// Tools names the external binaries, so they can be pointed at a
// non-default install location.
type Tools struct {
	Gdalinfo string `yaml:"gdalinfo"`
	Lasinfo  string `yaml:"lasinfo"`
	Pdal     string `yaml:"pdal"`
	Lasgrid  string `yaml:"lasgrid"`
}

// DefaultTools expects every tool on PATH
func DefaultTools() Tools {
	return Tools{
		Gdalinfo: "gdalinfo",
		Lasinfo:  "lasinfo",
		Pdal:     "pdal",
		Lasgrid:  "lasgrid",
	}
}

// lastoolsNotice is printed to stderr by unlicensed LAStools builds and is not an error
const lastoolsNotice = `Please note that LAStools is not "free"`

// IsToolNotice reports whether a diagnostic stream only carries the LAStools licence notice
func IsToolNotice(stderr []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(stderr), []byte(lastoolsNotice))
}
