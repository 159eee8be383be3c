package schema

import "fmt"

// RedundancyLevel is a fault-tolerance/striping scheme for a redundancy group.
type RedundancyLevel string

const (
	// LevelMirrored mirrors all member devices (two-way minimum).
	LevelMirrored RedundancyLevel = "mirrored"

	// LevelStriped stripes across all member devices without redundancy.
	LevelStriped RedundancyLevel = "striped"

	// LevelParitySingle stripes with one parity device worth of redundancy.
	LevelParitySingle RedundancyLevel = "parity-single"

	// LevelParityDual stripes with two parity devices worth of redundancy.
	LevelParityDual RedundancyLevel = "parity-dual"

	// LevelMirroredStriped stripes across mirrored device pairs.
	LevelMirroredStriped RedundancyLevel = "mirrored-striped"
)

// levelMinimums are the minimum member device counts per [RedundancyLevel].
var levelMinimums = map[RedundancyLevel]int{
	LevelMirrored:        2,
	LevelStriped:         2,
	LevelParitySingle:    3,
	LevelParityDual:      4,
	LevelMirroredStriped: 4,
}

// levelKernelNames map a [RedundancyLevel] to the kernel-side level name.
var levelKernelNames = map[RedundancyLevel]string{
	LevelMirrored:        "raid1",
	LevelStriped:         "raid0",
	LevelParitySingle:    "raid5",
	LevelParityDual:      "raid6",
	LevelMirroredStriped: "raid10",
}

// ParseRedundancyLevel parses a textual redundancy level into a
// [RedundancyLevel], failing with [ErrUnknownLevel] for any level outside of
// the fixed enumerated set.
func ParseRedundancyLevel(s string) (RedundancyLevel, error) {
	level := RedundancyLevel(s)

	if _, exists := levelMinimums[level]; !exists {
		return "", fmt.Errorf("%w: %s", ErrUnknownLevel, s)
	}

	return level, nil
}

// MinDevices returns the minimum member device count for the level.
func (l RedundancyLevel) MinDevices() int {
	return levelMinimums[l]
}

// KernelName returns the kernel-side level name (e.g. "raid5").
func (l RedundancyLevel) KernelName() string {
	return levelKernelNames[l]
}

// String implements [fmt.Stringer].
func (l RedundancyLevel) String() string {
	return string(l)
}
