package privilege

import (
	"errors"
	"io/fs"
	"os/exec"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
)

func TestArgv(t *testing.T) {
	e := &Escalator{
		Executable: "/usr/local/bin/dotsync",
		Args:       []string{"dotsync", "push", "--only", "nvim"},
	}

	want := []string{"sudo", "--preserve-env=HOME", "/usr/local/bin/dotsync", "push", "--only", "nvim"}
	if got := e.Argv(); !slices.Equal(got, want) {
		t.Errorf("Argv() = %v, want %v", got, want)
	}
}

func TestEscalate_AlreadyRoot(t *testing.T) {
	e := &Escalator{
		Executable: "/bin/dotsync",
		euid:       func() int { return 0 },
		run: func(*exec.Cmd) error {
			t.Fatal("should not run a command as root")
			return nil
		},
	}

	if err := e.Escalate("copy", "/etc/x", fs.ErrPermission); !errors.Is(err, ErrAlreadyElevated) {
		t.Errorf("Escalate() error = %v, want ErrAlreadyElevated", err)
	}
}

func TestEscalate_ExitsWithChildStatus(t *testing.T) {
	var gotArgs []string
	exitCode := -1
	e := &Escalator{
		Program:    "sudo",
		Executable: "/bin/dotsync",
		Args:       []string{"dotsync", "pull"},
		euid:       func() int { return 1000 },
		run: func(cmd *exec.Cmd) error {
			gotArgs = cmd.Args
			return nil
		},
		exit: func(code int) { exitCode = code },
	}

	if err := e.Escalate("remove", "/etc/x", fs.ErrPermission); err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exit code = %d, want 0", exitCode)
	}
	if !slices.Equal(gotArgs, []string{"sudo", "--preserve-env=HOME", "/bin/dotsync", "pull"}) {
		t.Errorf("ran %v", gotArgs)
	}
}

func TestEscalate_RunFailure(t *testing.T) {
	e := &Escalator{
		Executable: "/bin/dotsync",
		euid:       func() int { return 1000 },
		run:        func(*exec.Cmd) error { return exec.ErrNotFound },
		exit: func(int) {
			t.Error("should not exit when sudo cannot be started")
		},
	}

	if err := e.Escalate("copy", "/x", fs.ErrPermission); !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("Escalate() error = %v, want exec.ErrNotFound", err)
	}
}

func TestEscalate_SpawnsOnceForConcurrentCallers(t *testing.T) {
	const callers = 8
	var runs, exits atomic.Int32
	release := make(chan struct{})
	e := &Escalator{
		Executable: "/bin/dotsync",
		Args:       []string{"dotsync", "push"},
		euid:       func() int { return 1000 },
		run: func(*exec.Cmd) error {
			runs.Add(1)
			<-release
			return nil
		},
		exit: func(int) { exits.Add(1) },
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.Escalate("copy", "/etc/x", fs.ErrPermission)
		}()
	}
	close(release)
	wg.Wait()

	if got := runs.Load(); got != 1 {
		t.Errorf("elevated command ran %d times, want 1", got)
	}
	if got := exits.Load(); got != 1 {
		t.Errorf("exit called %d times, want 1", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: Escalate() error = %v", i, err)
		}
	}
}

func TestEscalate_LaterCallersShareFailure(t *testing.T) {
	var runs atomic.Int32
	e := &Escalator{
		Executable: "/bin/dotsync",
		euid:       func() int { return 1000 },
		run: func(*exec.Cmd) error {
			runs.Add(1)
			return exec.ErrNotFound
		},
		exit: func(int) { t.Error("should not exit when sudo cannot be started") },
	}

	for range 3 {
		if err := e.Escalate("remove", "/x", fs.ErrPermission); !errors.Is(err, exec.ErrNotFound) {
			t.Errorf("Escalate() error = %v, want exec.ErrNotFound", err)
		}
	}
	if got := runs.Load(); got != 1 {
		t.Errorf("elevated command ran %d times, want 1", got)
	}
}
