package model

import (
	"fmt"
	"io/fs"
	"strings"
)

// Kind records whether a tracked item is a single file or a directory tree.
// The zero value means the kind has not been determined yet.
type Kind string

const (
	// KindUnknown is the zero value used before an item has been synced.
	KindUnknown Kind = ""
	// KindFile marks an item whose path is a regular file.
	KindFile Kind = "file"
	// KindDirectory marks an item whose path is a directory.
	KindDirectory Kind = "directory"
)

// IsValid returns true if the kind is one of the known values (including unknown).
func (k Kind) IsValid() bool {
	switch k {
	case KindUnknown, KindFile, KindDirectory:
		return true
	default:
		return false
	}
}

// IsKnown returns true when the kind has been resolved to file or directory.
func (k Kind) IsKnown() bool {
	return k == KindFile || k == KindDirectory
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

// KindOf maps file info onto a Kind. The boolean is false for anything that is
// neither a regular file nor a directory (sockets, devices, symlinks).
func KindOf(info fs.FileInfo) (Kind, bool) {
	switch {
	case info.Mode().IsRegular():
		return KindFile, true
	case info.IsDir():
		return KindDirectory, true
	default:
		return KindUnknown, false
	}
}

// ParseKind converts a string to a Kind.
// Returns KindUnknown if the string is empty.
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))

	switch normalized {
	case "", "unknown", "none":
		return KindUnknown, nil
	case "file", "f":
		return KindFile, nil
	case "directory", "dir", "d":
		return KindDirectory, nil
	default:
		return KindUnknown, fmt.Errorf("unknown kind %q (valid: file, directory)", s)
	}
}

// UnmarshalText accepts the legacy "File"/"Dir" spellings as well as the canonical ones.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}
