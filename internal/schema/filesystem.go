package schema

import "fmt"

// FilesystemType is a provisionable filesystem type.
type FilesystemType string

const (
	// FilesystemXFS is the designated filesystem type; POSIX ACLs and project
	// quotas are only guaranteed for it.
	FilesystemXFS FilesystemType = "xfs"

	// FilesystemExt4 is provisionable, without project-quota guarantees.
	FilesystemExt4 FilesystemType = "ext4"

	// FilesystemBtrfs is provisionable, without project-quota guarantees.
	FilesystemBtrfs FilesystemType = "btrfs"
)

// filesystemTypes is the fixed enumerated set of [FilesystemType].
var filesystemTypes = map[FilesystemType]struct{}{
	FilesystemXFS:   {},
	FilesystemExt4:  {},
	FilesystemBtrfs: {},
}

// ParseFilesystemType parses a textual filesystem type into a
// [FilesystemType], failing with [ErrUnknownFilesystem] for any type outside
// of the fixed enumerated set.
func ParseFilesystemType(s string) (FilesystemType, error) {
	fsType := FilesystemType(s)

	if _, exists := filesystemTypes[fsType]; !exists {
		return "", fmt.Errorf("%w: %s", ErrUnknownFilesystem, s)
	}

	return fsType, nil
}

// SupportsACL reports whether POSIX ACL behavior is guaranteed for the type.
func (t FilesystemType) SupportsACL() bool {
	return t == FilesystemXFS
}

// SupportsProjectQuota reports whether project-quota enforcement is
// guaranteed for the type.
func (t FilesystemType) SupportsProjectQuota() bool {
	return t == FilesystemXFS
}

// String implements [fmt.Stringer].
func (t FilesystemType) String() string {
	return string(t)
}

// Protocol is a file-sharing protocol a share can be exposed over.
type Protocol string

const (
	// ProtocolNFS is the kernel-level network filesystem protocol.
	ProtocolNFS Protocol = "nfs"

	// ProtocolCIFS is the CIFS-style file-server protocol.
	ProtocolCIFS Protocol = "cifs"
)

// ParseProtocol parses a textual sharing protocol into a [Protocol], failing
// with [ErrUnknownProtocol] for any protocol outside of the fixed enumerated
// set.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolNFS:
		return ProtocolNFS, nil
	case ProtocolCIFS:
		return ProtocolCIFS, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownProtocol, s)
	}
}

// String implements [fmt.Stringer].
func (p Protocol) String() string {
	return string(p)
}
