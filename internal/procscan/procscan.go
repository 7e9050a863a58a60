// Package procscan resolves configured application patterns to live process
// IDs. Scans walk the full process table once and are cached behind a fixed
// TTL so the telemetry path stays cheap between scans.
package procscan

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PidCacheTTL is how long a resolved PID map stays valid. Process churn on
// the hosts swapwatch targets is slow enough that 30s loses nothing.
const PidCacheTTL = 30 * time.Second

// App is one monitored application as configured.
type App struct {
	// Pattern is matched case-insensitively as a substring of a process's
	// name, executable path, or any argument.
	Pattern string

	// ServiceName is the systemd unit behind this app.
	ServiceName string

	// IncludeChildren unions descendant PIDs into the app's entry.
	IncludeChildren bool
}

// ProcInfo is one live process as seen by a snapshot.
type ProcInfo struct {
	PID     int32
	PPID    int32
	Name    string
	Exe     string
	Cmdline []string
}

// Lister enumerates live processes. The production implementation is
// GopsutilLister; tests substitute a fixed table.
type Lister interface {
	Snapshot() ([]ProcInfo, error)
}

// Entry is the resolved PID set for one app. Entries are never mutated after
// a scan publishes them.
type Entry struct {
	PIDs            []int32
	IncludeChildren bool
	HasChildren     bool
}

// Stats are the resolver's performance counters.
type Stats struct {
	Scans            int64
	CacheHits        int64
	LastScanDuration time.Duration
}

// Resolver maps app patterns to PIDs with a TTL cache. The cache map is
// replaced wholesale on every scan so readers always see either the previous
// scan's result or the new one, never a mix.
type Resolver struct {
	apps   []App
	lister Lister
	ttl    time.Duration

	mu       sync.Mutex
	cache    map[string]Entry
	lastScan time.Time

	scans        atomic.Int64
	cacheHits    atomic.Int64
	scanDuration atomic.Int64 // nanoseconds

	nowFunc func() time.Time
}

// NewResolver creates a resolver over the given apps. App order is
// significant: when a process matches several patterns, the first configured
// app wins.
func NewResolver(apps []App, lister Lister) *Resolver {
	return &Resolver{
		apps:    apps,
		lister:  lister,
		ttl:     PidCacheTTL,
		nowFunc: time.Now,
	}
}

// Resolve returns the app-to-PIDs map, scanning the process table only when
// the cache is stale, empty, or forceRefresh is set. The returned map must
// not be mutated by callers.
func (r *Resolver) Resolve(forceRefresh bool) map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if !forceRefresh && now.Sub(r.lastScan) < r.ttl && len(r.cache) > 0 {
		r.cacheHits.Add(1)
		return r.cache
	}

	start := now
	r.cache = r.scan()
	r.lastScan = now
	r.scans.Add(1)
	r.scanDuration.Store(int64(r.nowFunc().Sub(start)))

	return r.cache
}

// scan walks the process table once and builds a fresh entry map. Errors on
// individual processes have already been folded into empty fields by the
// lister; a process that vanished entirely is simply absent.
func (r *Resolver) scan() map[string]Entry {
	procs, err := r.lister.Snapshot()
	if err != nil {
		return map[string]Entry{}
	}

	// Child index for descendant walks.
	children := make(map[int32][]int32, len(procs))
	for _, p := range procs {
		children[p.PPID] = append(children[p.PPID], p.PID)
	}

	type building struct {
		pids        []int32
		seen        map[int32]struct{}
		hasChildren bool
	}
	built := make(map[string]*building)

	addPID := func(b *building, pid int32) {
		if _, ok := b.seen[pid]; ok {
			return
		}
		b.seen[pid] = struct{}{}
		b.pids = append(b.pids, pid)
	}

	for _, p := range procs {
		name := strings.ToLower(p.Name)
		exe := strings.ToLower(p.Exe)

		for _, app := range r.apps {
			pattern := strings.ToLower(app.Pattern)
			if !matches(pattern, name, exe, p.Cmdline) {
				continue
			}

			b := built[app.Pattern]
			if b == nil {
				b = &building{seen: make(map[int32]struct{})}
				built[app.Pattern] = b
			}
			addPID(b, p.PID)

			if app.IncludeChildren {
				desc := descendants(p.PID, children)
				if len(desc) > 0 {
					b.hasChildren = true
					for _, pid := range desc {
						addPID(b, pid)
					}
				}
			}
			break // first matching app wins for this process
		}
	}

	result := make(map[string]Entry, len(built))
	for _, app := range r.apps {
		b, ok := built[app.Pattern]
		if !ok {
			continue
		}
		result[app.Pattern] = Entry{
			PIDs:            b.pids,
			IncludeChildren: app.IncludeChildren,
			HasChildren:     b.hasChildren,
		}
	}
	return result
}

func matches(pattern, name, exe string, cmdline []string) bool {
	if strings.Contains(name, pattern) {
		return true
	}
	if exe != "" && strings.Contains(exe, pattern) {
		return true
	}
	for _, arg := range cmdline {
		if strings.Contains(strings.ToLower(arg), pattern) {
			return true
		}
	}
	return false
}

// descendants returns all transitive children of pid. The visited set guards
// against PID reuse producing a cycle in the snapshot.
func descendants(pid int32, children map[int32][]int32) []int32 {
	var out []int32
	visited := map[int32]struct{}{pid: {}}
	stack := append([]int32(nil), children[pid]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[next]; ok {
			continue
		}
		visited[next] = struct{}{}
		out = append(out, next)
		stack = append(stack, children[next]...)
	}
	return out
}

// Stats returns the resolver's counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Scans:            r.scans.Load(),
		CacheHits:        r.cacheHits.Load(),
		LastScanDuration: time.Duration(r.scanDuration.Load()),
	}
}

// LastScanDuration returns how long the most recent full scan took.
func (r *Resolver) LastScanDuration() time.Duration {
	return time.Duration(r.scanDuration.Load())
}
