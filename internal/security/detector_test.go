package security_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/judgecore/executor/api"
	"github.com/judgecore/executor/internal/security"
)

func kinds(violations []api.Violation) []api.ViolationKind {
	res := make([]api.ViolationKind, 0, len(violations))
	for _, v := range violations {
		res = append(res, v.Kind)
	}
	return res
}

func TestScanCleanOutput(t *testing.T) {
	d := security.NewDetector(api.SecurityHigh)
	require.Empty(t, d.Scan("all good\n42\n", nil))
}

func TestScanFileAccessDenied(t *testing.T) {
	d := security.NewDetector(api.SecurityLow)
	found := d.Scan("open /etc/passwd: Permission denied\n", nil)
	require.Contains(t, kinds(found), api.ViolationFileAccess)
}

func TestScanNetworkBlocked(t *testing.T) {
	d := security.NewDetector(api.SecurityLow)
	found := d.Scan("connect: Network is unreachable\n", nil)
	require.Contains(t, kinds(found), api.ViolationNetworkAccess)
}

func TestScanShadowRead(t *testing.T) {
	d := security.NewDetector(api.SecurityLow)
	found := d.Scan("cat: /etc/shadow: No such file\n", nil)
	require.Contains(t, kinds(found), api.ViolationSandboxEscape)
}

func TestHighOnlyPatternsGatedByLevel(t *testing.T) {
	stderr := "ptrace attach failed\n"

	low := security.NewDetector(api.SecurityLow).Scan(stderr, nil)
	require.Empty(t, low)

	high := security.NewDetector(api.SecurityHigh).Scan(stderr, nil)
	require.Contains(t, kinds(high), api.ViolationSandboxEscape)
}

func TestScanDeduplicatesRepeats(t *testing.T) {
	d := security.NewDetector(api.SecurityLow)
	stderr := "permission denied\npermission denied\npermission denied\n"
	found := d.Scan(stderr, nil)
	require.Len(t, found, 1)
}

func TestSigSysRecordedAsSyscallViolation(t *testing.T) {
	d := security.NewDetector(api.SecurityLow)
	sig := int64(31)
	found := d.Scan("", &sig)
	require.Len(t, found, 1)
	require.Equal(t, api.ViolationSyscall, found[0].Kind)
	require.Equal(t, "SIGSYS", found[0].Pattern)
}

func TestDetailCarriesContext(t *testing.T) {
	d := security.NewDetector(api.SecurityLow)
	found := d.Scan("x\nopen /root/flag: permission denied while reading\ny\n", nil)
	require.NotEmpty(t, found)
	require.Contains(t, found[0].Detail, "permission denied")
}
