package server

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/tweetvault/internal/models"
)

// systemResources samples host usage with gopsutil. Failed probes are logged and left at zero.
func systemResources(diskPath string, logger *logrus.Logger) models.SystemResources {
	var res models.SystemResources

	res.CPUCount = runtime.NumCPU()
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		res.CPUCount = n
	}

	if percents, err := cpu.Percent(0, false); err != nil {
		logger.Warnf("Failed to get CPU percent: %v", err)
	} else if len(percents) > 0 {
		res.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		logger.Warnf("Failed to get memory info: %v", err)
	} else {
		res.MemoryTotal = vm.Total
		res.MemoryUsed = vm.Used
		res.MemoryPercent = vm.UsedPercent
	}

	if diskPath == "" {
		diskPath = "/"
	}
	if usage, err := disk.Usage(diskPath); err != nil {
		logger.Warnf("Failed to get disk usage: %v", err)
	} else {
		res.DiskTotal = usage.Total
		res.DiskUsed = usage.Used
		res.DiskPercent = usage.UsedPercent
	}

	return res
}
