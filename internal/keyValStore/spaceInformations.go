package keyValStore

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// checkFreeSpace refuses to open a store whose filesystem has less than
// minimumFreeGB gigabytes left.
func checkFreeSpace(paths []string, minimumFreeGB int) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			return fmt.Errorf("unable to read disk usage for path %s: %w", path, err)
		}

		freeGB := usage.Free / (1024 * 1024 * 1024)
		if freeGB < uint64(minimumFreeGB) {
			return fmt.Errorf("path %s has %d GB free, %d GB required", path, freeGB, minimumFreeGB)
		}
	}
	return nil
}

// displayDiskUsage displays the disk usage information using structured logging
func displayDiskUsage(paths []string) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error retrieving disk usage stats: %v", err)
			return err
		}

		log.WithFields(logrus.Fields{
			"path":        path,
			"totalGB":     usage.Total / (1024 * 1024 * 1024),
			"freeGB":      usage.Free / (1024 * 1024 * 1024),
			"usedPercent": fmt.Sprintf("%.1f", usage.UsedPercent),
		}).Info("Disk usage")
	}

	return nil
}
