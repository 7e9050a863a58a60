package sysops

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

const dropCachesPath = "/proc/sys/vm/drop_caches"

// settleAfterDrop lets the kernel finish reclaim before the effect is
// measured.
const settleAfterDrop = 1 * time.Second

// DropStats reports what a cache drop actually freed.
type DropStats struct {
	MemFreedBytes  int64
	SwapFreedBytes int64
}

// CacheDropper releases reclaimable kernel caches. Best effort: containers
// and restricted VPSes commonly deny the write, which callers must be able
// to distinguish from other failures via errors.Is(err, os.ErrPermission).
type CacheDropper struct {
	// sleep is swapped in tests to avoid the real settle wait.
	sleep func(time.Duration)
}

// NewCacheDropper creates a dropper.
func NewCacheDropper() *CacheDropper {
	return &CacheDropper{sleep: time.Sleep}
}

// Drop syncs dirty pages and asks the kernel to release pagecache, dentries
// and inodes, then measures how much memory and swap were actually freed.
func (d *CacheDropper) Drop(ctx context.Context) (DropStats, error) {
	memBefore, err := mem.VirtualMemory()
	if err != nil {
		return DropStats{}, fmt.Errorf("read memory before drop: %w", err)
	}
	swapBefore, err := mem.SwapMemory()
	if err != nil {
		return DropStats{}, fmt.Errorf("read swap before drop: %w", err)
	}

	syscall.Sync()

	if err := os.WriteFile(dropCachesPath, []byte("3\n"), 0o200); err != nil {
		if os.IsPermission(err) {
			return DropStats{}, fmt.Errorf("drop caches: %w", os.ErrPermission)
		}
		return DropStats{}, fmt.Errorf("drop caches: %w", err)
	}

	select {
	case <-ctx.Done():
		return DropStats{}, ctx.Err()
	default:
	}
	d.sleep(settleAfterDrop)

	memAfter, err := mem.VirtualMemory()
	if err != nil {
		return DropStats{}, nil // drop worked; only the measurement failed
	}
	swapAfter, err := mem.SwapMemory()
	if err != nil {
		return DropStats{}, nil
	}

	return DropStats{
		MemFreedBytes:  int64(memBefore.Used) - int64(memAfter.Used),
		SwapFreedBytes: int64(swapBefore.Used) - int64(swapAfter.Used),
	}, nil
}
