package telemetry

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
)

// ReadSwapBytes reads the resident swap of each pid from its
// /proc/<pid>/status VmSwap field (reported in kB). A pid whose record is
// missing, unreadable, or malformed counts as zero usage, never an error:
// processes exit mid-collection all the time.
func ReadSwapBytes(pids []int32) map[int32]uint64 {
	out := make(map[int32]uint64, len(pids))
	for _, pid := range pids {
		out[pid] = vmSwapBytes(pid)
	}
	return out
}

func vmSwapBytes(pid int32) uint64 {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmSwap:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

// SystemSwap reports total swap capacity and current usage percent. gopsutil
// is the primary source; when it reports zero capacity, /proc/meminfo is
// consulted before concluding the host truly has no swap.
func SystemSwap() (total uint64, usedPercent float64, err error) {
	swap, err := mem.SwapMemory()
	if err != nil {
		return 0, 0, err
	}
	if swap.Total > 0 {
		return swap.Total, swap.UsedPercent, nil
	}

	total = meminfoSwapTotal()
	return total, 0, nil
}

func meminfoSwapTotal() uint64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "SwapTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

// SystemMemoryPercent returns current RAM usage percent.
func SystemMemoryPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
