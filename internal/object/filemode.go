package object

import "strconv"

// FileMode is the octal-ish mode string Git stores per tree entry.
// Spec §3.1 fixes the legal set; writers must always emit the canonical
// six-digit form even though readers accept leading zeros dropped.
type FileMode uint32

const (
	ModeFile       FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeDir        FileMode = 0o040000
	ModeSubmodule  FileMode = 0o160000
)

// IsTree reports whether entries of this mode are walked as subtrees
// during canonical ordering (spec §3.1: "directory entries treated as if
// suffixed by /").
func (m FileMode) IsTree() bool {
	return m == ModeDir
}

// String renders the octal form without leading zeros ("40000" for a
// directory); Tree.Encode writes the canonical six-digit form instead.
func (m FileMode) String() string {
	return strconv.FormatUint(uint64(m), 8)
}

// ParseFileMode accepts ASCII digits with or without leading zeros, per
// spec §4.B ("Modes are ASCII digits with no fixed width").
func ParseFileMode(s string) (FileMode, bool) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, false
	}
	switch FileMode(v) {
	case ModeFile, ModeExecutable, ModeSymlink, ModeDir, ModeSubmodule:
		return FileMode(v), true
	default:
		return 0, false
	}
}

// ObjectType reports which kind of object a tree entry with this mode
// points at.
func (m FileMode) ObjectType() Type {
	if m == ModeDir {
		return TreeObject
	}
	return BlobObject
}
