// Package privilege re-executes dotsync with elevated rights after a
// permission failure.
package privilege

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/klauern/dotsync/internal/logging"
)

// ErrAlreadyElevated is returned when the process is already running as root,
// so re-executing would not help.
var ErrAlreadyElevated = errors.New("already running with elevated privileges")

// DefaultProgram is the command used to elevate.
const DefaultProgram = "sudo"

// Escalator re-runs the current command line under sudo and exits with the
// child's status. Its Escalate method satisfies mirror.EscalateFunc.
type Escalator struct {
	// Program is the elevation command. Defaults to DefaultProgram.
	Program string
	// Executable is the binary to re-run. Defaults to os.Executable().
	Executable string
	// Args are the original arguments, including argv[0]. Defaults to os.Args.
	Args []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	run  func(*exec.Cmd) error
	exit func(int)
	euid func() int

	once sync.Once
	err  error
}

// New returns an Escalator for the current process.
func New() *Escalator {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return &Escalator{
		Program:    DefaultProgram,
		Executable: exe,
		Args:       os.Args,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		run:        (*exec.Cmd).Run,
		exit:       os.Exit,
		euid:       os.Geteuid,
	}
}

// Argv returns the full elevated command line. HOME is preserved so that
// ~ keeps resolving to the invoking user's home directory.
func (e *Escalator) Argv() []string {
	program := e.Program
	if program == "" {
		program = DefaultProgram
	}
	argv := []string{program, "--preserve-env=HOME", e.Executable}
	if len(e.Args) > 1 {
		argv = append(argv, e.Args[1:]...)
	}
	return argv
}

// Escalate re-runs the process elevated and terminates with the child's exit
// code. It only returns when elevation is impossible.
//
// The elevated child re-runs the whole command, so only the first call spawns
// it. Concurrent and later callers block until that call finishes and get its
// result.
func (e *Escalator) Escalate(op, path string, cause error) error {
	e.once.Do(func() {
		e.err = e.reexec(op, path, cause)
	})
	return e.err
}

func (e *Escalator) reexec(op, path string, cause error) error {
	if e.euid != nil && e.euid() == 0 {
		return ErrAlreadyElevated
	}

	argv := e.Argv()
	logging.Warn("permission denied, re-running with elevated privileges",
		logging.Operation(op), logging.Path(path), logging.Err(cause))

	// #nosec G204 - argv is our own binary and arguments
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	run := e.run
	if run == nil {
		run = (*exec.Cmd).Run
	}
	code := 0
	if err := run(cmd); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("failed to run %s: %w", argv[0], err)
		}
		code = exitErr.ExitCode()
	}

	exit := e.exit
	if exit == nil {
		exit = os.Exit
	}
	exit(code)
	return nil
}
