package mirror

import "fmt"

// FormatSpeed renders an instantaneous transfer rate: whole bytes below
// 1 KiB/s, two-decimal KB/s below 1 MiB/s, two-decimal MB/s above.
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond < 1024:
		return fmt.Sprintf("%.0f B/s", bytesPerSecond)
	case bytesPerSecond < 1024*1024:
		return fmt.Sprintf("%.2f KB/s", bytesPerSecond/1024)
	default:
		return fmt.Sprintf("%.2f MB/s", bytesPerSecond/(1024*1024))
	}
}
