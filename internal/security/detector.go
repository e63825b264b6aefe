package security

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/judgecore/executor/api"
)

// SIGSYS: the seccomp filter killed the process on a disallowed syscall.
const sigSys = 31

// signature is one known stderr pattern indicating a security-relevant
// failure inside the sandbox. Detection is defense in depth over the
// OS-level policy, not the containment mechanism itself.
type signature struct {
	kind     api.ViolationKind
	pattern  string
	highOnly bool
}

var signatures = []signature{
	{kind: api.ViolationFileAccess, pattern: "permission denied"},
	{kind: api.ViolationFileAccess, pattern: "operation not permitted"},
	{kind: api.ViolationFileAccess, pattern: "read-only file system"},
	{kind: api.ViolationNetworkAccess, pattern: "network is unreachable"},
	{kind: api.ViolationNetworkAccess, pattern: "connection refused", highOnly: true},
	{kind: api.ViolationNetworkAccess, pattern: "temporary failure in name resolution"},
	{kind: api.ViolationSyscall, pattern: "bad system call"},
	{kind: api.ViolationSyscall, pattern: "seccomp"},
	{kind: api.ViolationPrivilege, pattern: "must be root"},
	{kind: api.ViolationPrivilege, pattern: "effective uid is not 0"},
	{kind: api.ViolationSandboxEscape, pattern: "/etc/shadow"},
	{kind: api.ViolationSandboxEscape, pattern: "/proc/sys/", highOnly: true},
	{kind: api.ViolationSandboxEscape, pattern: "ptrace", highOnly: true},
}

// Detector scans captured output for violation signatures.
type Detector struct {
	level api.SecurityLevel
}

func NewDetector(level api.SecurityLevel) *Detector {
	if level == "" {
		level = api.SecurityLow
	}
	return &Detector{level: level}
}

// Scan inspects stderr text and the exit signal and returns the typed
// violations found, deduplicated by kind+pattern.
func (d *Detector) Scan(stderr string, signal *int64) []api.Violation {
	lower := strings.ToLower(stderr)
	seen := mapset.NewThreadUnsafeSet[string]()

	var found []api.Violation
	for _, sig := range signatures {
		if sig.highOnly && d.level != api.SecurityHigh {
			continue
		}
		if !strings.Contains(lower, sig.pattern) {
			continue
		}
		key := string(sig.kind) + "|" + sig.pattern
		if !seen.Add(key) {
			continue
		}
		found = append(found, api.Violation{
			Kind:    sig.kind,
			Pattern: sig.pattern,
			Detail:  surrounding(lower, sig.pattern),
		})
	}

	if signal != nil && *signal == sigSys {
		found = append(found, api.Violation{
			Kind:    api.ViolationSyscall,
			Pattern: "SIGSYS",
			Detail:  "process terminated by the syscall filter",
		})
	}

	return found
}

// surrounding returns a short context window around the first match for
// operator-facing detail.
func surrounding(text, pattern string) string {
	idx := strings.Index(text, pattern)
	if idx < 0 {
		return ""
	}
	start := idx - 40
	if start < 0 {
		start = 0
	}
	end := idx + len(pattern) + 40
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}
