package hardening

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const procStatus = "/proc/self/status"

// CurrentRSSBytes returns the resident set size of this process. Linux only.
func CurrentRSSBytes() (int64, error) {
	f, err := os.Open(procStatus)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ParseRSSBytes(f)
}

// ParseRSSBytes reads the VmRSS line of a /proc/<pid>/status document.
func ParseRSSBytes(r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		rest, ok := strings.CutPrefix(scanner.Text(), "VmRSS:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) != 2 || fields[1] != "kB" {
			return 0, fmt.Errorf("unexpected VmRSS line %q", strings.TrimSpace(rest))
		}
		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse VmRSS: %w", err)
		}
		return kb * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("VmRSS not found")
}
