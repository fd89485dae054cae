package lsm

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SSTablePath returns the file path of the level file, or of the in-flight
// merge intermediate for that level when temp is set
func SSTablePath(dir string, level int, temp bool) string {
	name := fmt.Sprintf("L%d", level)
	if temp {
		name += tempSuffix
	}
	return filepath.Join(dir, name)
}

// parseSSTableName recognizes "L<level>" and "L<level>Temp"
func parseSSTableName(name string) (level int, temp bool, ok bool) {
	rest, found := strings.CutPrefix(name, "L")
	if !found {
		return 0, false, false
	}
	if trimmed, isTemp := strings.CutSuffix(rest, tempSuffix); isTemp {
		rest = trimmed
		temp = true
	}
	level, err := strconv.Atoi(rest)
	// Only the canonical spelling SSTablePath produces, so "L01" or "L+1"
	// can never alias L1
	if err != nil || level < 1 || strconv.Itoa(level) != rest {
		return 0, false, false
	}
	return level, temp, true
}
