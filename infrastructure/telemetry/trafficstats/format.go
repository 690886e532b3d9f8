package trafficstats

import "fmt"

// FormatTotal renders a byte count with binary units.
func FormatTotal(bytes uint64) string {
	value := float64(bytes)
	units := []string{"B", "KiB", "MiB", "GiB"}
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f %s", value, units[i])
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}

func (s Snapshot) String() string {
	return fmt.Sprintf("rx %s in %d packets, tx %s in %d packets, %d resent, %d dropped",
		FormatTotal(s.RXBytes), s.RXPackets,
		FormatTotal(s.TXBytes), s.TXPackets,
		s.Resent, s.Dropped,
	)
}
