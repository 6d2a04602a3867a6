// Package runner executes submitted source out-of-process and captures the
// text to show in the shared terminal. Execution is best-effort by contract:
// compile errors, crashes, and timeouts are all ordinary output, never
// errors, so a broken snippet can't take the server down with it.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"log/slog"

	"github.com/mon1909/Collaborative-Coding/pkg/metrics"
)

// NoOutput is returned when a run produces nothing on either stream.
const NoOutput = "No output"

// TimedOut is broadcast when a run is killed at the deadline.
const TimedOut = "execution timed out"

// language maps a tag to the staged filename and the shell command that
// builds and runs it inside the scratch dir. A language with an empty
// Command is declared non-executable and answers with Message instead of
// spawning anything.
type language struct {
	File    string
	Command string
	Message string
}

var languages = map[string]language{
	"javascript": {File: "main.js", Command: "node main.js"},
	"python":     {File: "main.py", Command: "python3 main.py"},
	"c":          {File: "main.c", Command: "gcc main.c -o prog && ./prog"},
	"cpp":        {File: "main.cpp", Command: "g++ main.cpp -o prog && ./prog"},
	"java":       {File: "Main.java", Command: "javac Main.java && java Main"},
	"html":       {Message: "HTML cannot be executed on the server"},
}

type Runner struct {
	log     *slog.Logger
	timeout time.Duration
	dir     string // parent for scratch dirs; "" = os temp dir
}

func New(log *slog.Logger, timeout time.Duration, dir string) *Runner {
	return &Runner{log: log, timeout: timeout, dir: dir}
}

// Run stages source into a fresh scratch directory, executes the language's
// command with a wall-clock bound, and returns stderr if non-empty, else
// stdout, else NoOutput. Every run gets its own directory, so concurrent
// runs from any number of rooms never share a filename; removing the
// directory afterwards also collects compiler byproducts.
func (r *Runner) Run(ctx context.Context, tag, source string) string {
	lang, ok := languages[tag]
	if !ok {
		return fmt.Sprintf("%s cannot be executed on the server", tag)
	}
	if lang.Command == "" {
		return lang.Message
	}

	scratch, err := os.MkdirTemp(r.dir, "collab-run-")
	if err != nil {
		r.log.Error("run.scratch", "err", err)
		return NoOutput
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			r.log.Error("run.cleanup", "dir", scratch, "err", err)
		}
	}()

	if err := os.WriteFile(filepath.Join(scratch, lang.File), []byte(source), 0o600); err != nil {
		r.log.Error("run.stage", "file", lang.File, "err", err)
		return NoOutput
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", lang.Command)
	cmd.Dir = scratch
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		metrics.RunTimeoutsTotal.Inc()
		r.log.Warn("run.timeout", "language", tag, "timeout", r.timeout)
		return TimedOut
	}
	if err != nil {
		// Non-zero exit is not a failure at this level; whatever the
		// process wrote is the answer.
		r.log.Debug("run.exit", "language", tag, "err", err)
	}

	if s := stderr.String(); s != "" {
		return s
	}
	if s := stdout.String(); s != "" {
		return s
	}
	return NoOutput
}
