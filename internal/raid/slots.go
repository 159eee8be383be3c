package raid

import (
	"fmt"
	"regexp"
	"strconv"
)

// PatternNodes matches existing group-device nodes below /dev.
const PatternNodes = `^md([0-9]+)$`

const devDir = "/dev"

// nextFreeNode scans the existing group-device slots and returns the node
// with the lowest unused index. It is a pure function over currently observed
// state; no counter is kept across invocations.
func (h *Handler) nextFreeNode() (string, error) {
	nodePattern := regexp.MustCompile(PatternNodes)

	entries, err := h.osHandler.ReadDir(devDir)
	if err != nil {
		return "", fmt.Errorf("failed to readdir %s: %w", devDir, err)
	}

	used := make(map[int]struct{})

	for _, entry := range entries {
		matches := nodePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		index, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		used[index] = struct{}{}
	}

	index := 0
	for {
		if _, exists := used[index]; !exists {
			return fmt.Sprintf("%s/md%d", devDir, index), nil
		}
		index++
	}
}
