package monitor

import (
	"fmt"
	"strconv"
	"strings"
)

// parseStatus extracts peak RSS and context-switch counters from the
// contents of /proc/<pid>/status.
func parseStatus(data []byte, s *Sample) {
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "VmHWM:"):
			s.PeakRssKb = parseKbLine(line)
		case strings.HasPrefix(line, "voluntary_ctxt_switches:"):
			s.CtxSwVoluntary = parseCountLine(line)
		case strings.HasPrefix(line, "nonvoluntary_ctxt_switches:"):
			s.CtxSwForced = parseCountLine(line)
		}
	}
}

// parseStat extracts fault counters and cpu ticks from the contents of
// /proc/<pid>/stat. The comm field may contain spaces, so fields are
// counted from the closing paren.
func parseStat(data []byte, s *Sample) error {
	text := string(data)
	idx := strings.LastIndexByte(text, ')')
	if idx < 0 || idx+2 > len(text) {
		return fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(text[idx+2:])
	// After comm: field 0 is state; minflt, majflt, utime, stime are at
	// offsets 7, 9, 11 and 12 of the remainder.
	if len(fields) < 13 {
		return fmt.Errorf("stat line has %d fields", len(fields))
	}
	s.MinorFaults = parseInt(fields[7])
	s.MajorFaults = parseInt(fields[9])
	s.CpuTicks = parseInt(fields[11]) + parseInt(fields[12])
	return nil
}

func parseKbLine(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	return parseInt(fields[1])
}

func parseCountLine(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	return parseInt(fields[1])
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
