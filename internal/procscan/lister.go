package procscan

import (
	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilLister snapshots the live process table via gopsutil. Per-process
// read errors (exited mid-scan, access denied) degrade that process's fields
// to empty values rather than failing the snapshot.
type GopsutilLister struct{}

// Snapshot returns all live processes.
func (GopsutilLister) Snapshot() ([]ProcInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	out := make([]ProcInfo, 0, len(procs))
	for _, p := range procs {
		info := ProcInfo{PID: p.Pid}
		if ppid, err := p.Ppid(); err == nil {
			info.PPID = ppid
		}
		if name, err := p.Name(); err == nil {
			info.Name = name
		}
		if exe, err := p.Exe(); err == nil {
			info.Exe = exe
		}
		if args, err := p.CmdlineSlice(); err == nil {
			info.Cmdline = args
		}
		out = append(out, info)
	}
	return out, nil
}
