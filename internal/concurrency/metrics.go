package concurrency

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

func pid() int { return os.Getpid() }

// snapshotSelf captures the calling process's CPU time and RSS via
// gopsutil, standing in for the source's getrusage()-based
// ThreadMetricsSample (§4.7). gopsutil is used here rather than a raw
// syscall so the snapshot stays portable across the platforms Go
// targets; Valid is false if gopsutil cannot read process stats on this
// host (e.g. a sandboxed or exotic OS), matching §4.7's "start.valid /
// end.valid indicate whether the OS supported each snapshot".
func snapshotSelf() ResourceSnapshot {
	proc, err := process.NewProcess(int32(pid()))
	if err != nil {
		return ResourceSnapshot{Valid: false, At: time.Now()}
	}
	times, err := proc.Times()
	if err != nil {
		return ResourceSnapshot{Valid: false, At: time.Now()}
	}
	memInfo, err := proc.MemoryInfo()
	var rss uint64
	if err == nil && memInfo != nil {
		rss = memInfo.RSS
	}
	cpu := time.Duration((times.User + times.System) * float64(time.Second))
	return ResourceSnapshot{Valid: true, At: time.Now(), CPUTime: cpu, RSSBytes: rss}
}
