package daemon

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo is what Status adds for a live PID.
type ProcessInfo struct {
	StartedAt time.Time
	RSSBytes  uint64
}

// Inspector looks up process details by PID.
type Inspector func(ctx context.Context, pid int) (ProcessInfo, error)

// InspectProcess reads creation time and resident memory with gopsutil.
func InspectProcess(ctx context.Context, pid int) (ProcessInfo, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ProcessInfo{}, err
	}
	var info ProcessInfo
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		info.StartedAt = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	return info, nil
}
