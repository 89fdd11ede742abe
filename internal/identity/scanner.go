package identity

import (
	"context"
	"path"
	"strings"

	sysinfo "github.com/elastic/go-sysinfo"
)

// SysinfoScanner scans the host process table.
type SysinfoScanner struct{}

// NewSysinfoScanner creates a process-table scanner for the current host.
func NewSysinfoScanner() *SysinfoScanner {
	return &SysinfoScanner{}
}

// Running reports whether any process matches name. Matching ignores case,
// directories and a trailing ".exe". Processes that vanish or deny access
// mid-scan are skipped.
func (SysinfoScanner) Running(ctx context.Context, name string) (bool, error) {
	want := normalizeProcessName(name)
	if want == "" {
		return false, nil
	}

	procs, err := sysinfo.Processes()
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		info, err := p.Info()
		if err != nil {
			continue
		}
		if normalizeProcessName(info.Name) == want {
			return true, nil
		}
	}
	return false, nil
}

func normalizeProcessName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	name = strings.ToLower(path.Base(name))
	return strings.TrimSuffix(name, ".exe")
}
