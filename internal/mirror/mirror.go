// Package mirror makes a destination path match a source path.
//
// Mirroring is clear-then-copy: the destination is removed (Prune) and then
// rebuilt from the source (Populate). Anything that existed only at the
// destination is lost. Symlinks and special files below the source root are
// skipped, and .git directories are never copied.
package mirror

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/klauern/dotsync/internal/ignore"
	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/model"
	"github.com/klauern/dotsync/internal/util"
)

// EscalateFunc is called when a step fails with a permission error. It should
// acquire elevated rights (or terminate the process). Returning nil causes the
// step to be retried exactly once.
type EscalateFunc func(op, path string, cause error) error

// DefaultDirPerm is OR'ed into the mode of every created directory so the
// engine can always populate what it creates.
const DefaultDirPerm fs.FileMode = 0o700

// Options configures an Engine.
type Options struct {
	// Escalate handles permission failures. Nil makes them fatal immediately.
	Escalate EscalateFunc
	// Ignore excludes paths beyond the always-skipped .git directories.
	Ignore *ignore.Matcher
	// DirPerm is OR'ed into created directory modes. Defaults to DefaultDirPerm.
	DirPerm fs.FileMode
	// Logger receives skip and escalation diagnostics. Defaults to logging.Default().
	Logger *slog.Logger
}

// Engine mirrors trees. It holds no mutable state and is safe for concurrent
// use on disjoint paths.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.DirPerm == 0 {
		opts.DirPerm = DefaultDirPerm
	}
	return &Engine{opts: opts}
}

// Mirror replaces dst with a copy of src. kind is the cached type of the item;
// KindUnknown (or a cached kind that no longer matches the source) falls back
// to the live type of src. A symlinked src root is followed.
func (e *Engine) Mirror(src, dst string, kind model.Kind) error {
	if err := checkDisjoint(src, dst); err != nil {
		return err
	}
	kind, err := e.resolve(src, kind)
	if err != nil {
		return err
	}
	if err := e.Prune(dst); err != nil {
		return err
	}
	return e.populate(src, dst, kind)
}

// Prune removes dst and everything below it. A missing dst is not an error.
func (e *Engine) Prune(dst string) error {
	if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return e.try(OpRemove, dst, func() error {
		return os.RemoveAll(dst)
	})
}

// Populate copies src to dst, creating dst's missing ancestors. It does not
// remove anything first; call Prune (or Mirror) for clear-then-copy.
func (e *Engine) Populate(src, dst string, kind model.Kind) error {
	if err := checkDisjoint(src, dst); err != nil {
		return err
	}
	kind, err := e.resolve(src, kind)
	if err != nil {
		return err
	}
	return e.populate(src, dst, kind)
}

// checkDisjoint rejects a src and dst that are the same path or nested in
// each other. Pruning dst would delete src, and copying src would recurse into dst.
func checkDisjoint(src, dst string) error {
	switch {
	case util.Within(src, dst) && util.Within(dst, src):
		return &Error{Op: OpCopy, Path: dst, Err: ErrSamePath}
	case util.Overlaps(src, dst):
		return &Error{Op: OpCopy, Path: dst, Err: fmt.Errorf("%w: %s", ErrNestedPath, src)}
	}
	return nil
}

func (e *Engine) populate(src, dst string, kind model.Kind) error {
	if err := e.mkdirAll(filepath.Dir(dst)); err != nil {
		return err
	}

	if kind == model.KindFile {
		return e.copyFile(src, dst)
	}
	return e.copyDir(src, dst, ".")
}

// resolve stats src and decides how to copy it.
func (e *Engine) resolve(src string, cached model.Kind) (model.Kind, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return model.KindUnknown, &Error{Op: OpStat, Path: src, Err: ErrSourceMissing}
	}
	if err != nil {
		return model.KindUnknown, &Error{Op: OpStat, Path: src, Err: err}
	}

	live, ok := model.KindOf(info)
	if !ok {
		return model.KindUnknown, &Error{Op: OpStat, Path: src, Err: ErrInvalidKind}
	}
	if cached.IsKnown() && cached != live {
		e.logger().Warn("cached kind is stale, using live type",
			logging.Path(src), slog.String("cached", cached.String()), slog.String("live", live.String()))
	}
	return live, nil
}

func (e *Engine) copyDir(src, dst, rel string) error {
	info, err := os.Stat(src)
	if err != nil {
		return &Error{Op: OpStat, Path: src, Err: err}
	}
	if err := e.mkdir(dst, info.Mode().Perm()); err != nil {
		return err
	}

	var entries []fs.DirEntry
	err = e.try(OpRead, src, func() error {
		var readErr error
		entries, readErr = os.ReadDir(src)
		return readErr
	})
	if err != nil {
		return err
	}

	for _, entry := range entries {
		childRel := path.Join(rel, entry.Name())
		if e.opts.Ignore.Match(childRel) {
			continue
		}

		childSrc := filepath.Join(src, entry.Name())
		childDst := filepath.Join(dst, entry.Name())

		mode := entry.Type()
		switch {
		case mode&fs.ModeSymlink != 0:
			e.logger().Info("skipping symlink", logging.Path(childSrc))
		case mode.IsDir():
			if err := e.copyDir(childSrc, childDst, childRel); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := e.copyFile(childSrc, childDst); err != nil {
				return err
			}
		default:
			e.logger().Warn("skipping special file", logging.Path(childSrc), slog.String("mode", mode.String()))
		}
	}
	return nil
}

// copyFile overwrites dst with src's bytes and permission bits.
func (e *Engine) copyFile(src, dst string) error {
	return e.try(OpCopy, dst, func() error {
		// #nosec G304 - copying user-configured paths is the point
		in, err := os.Open(src)
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()

		info, err := in.Stat()
		if err != nil {
			return err
		}
		perm := info.Mode().Perm()

		// #nosec G304 - destination is derived from the tracked item
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Chmod(dst, perm)
	})
}

// mkdir creates one directory. An existing entry is accepted.
func (e *Engine) mkdir(dir string, perm fs.FileMode) error {
	return e.try(OpCreate, dir, func() error {
		err := os.Mkdir(dir, perm|e.opts.DirPerm)
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	})
}

func (e *Engine) mkdirAll(dir string) error {
	return e.try(OpCreate, dir, func() error {
		err := os.MkdirAll(dir, 0o755|e.opts.DirPerm)
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	})
}

// try runs fn. A permission failure is handed to Escalate and fn is retried
// once; a second failure is fatal.
func (e *Engine) try(op, target string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	if errors.Is(err, fs.ErrPermission) && e.opts.Escalate != nil {
		e.logger().Warn("permission denied, escalating",
			logging.Operation(op), logging.Path(target), logging.Err(err))

		if escErr := e.opts.Escalate(op, target, err); escErr != nil {
			return &Error{Op: op, Path: target, Err: fmt.Errorf("%w (escalation failed: %w)", err, escErr)}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return &Error{Op: op, Path: target, Err: err}
}

func (e *Engine) logger() *slog.Logger {
	if e.opts.Logger != nil {
		return e.opts.Logger
	}
	return logging.Default()
}
