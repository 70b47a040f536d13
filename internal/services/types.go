package services

import "fmt"

// PortRange defines an inclusive range of ports
type PortRange struct {
	Start int
	End   int
}

// DefaultPortRange is the range scanned for a fresh format service.
var DefaultPortRange = PortRange{Start: 20000, End: 60000}

// Validate rejects empty or out-of-bounds ranges.
func (r PortRange) Validate() error {
	if r.Start < 1 || r.End > 65535 {
		return fmt.Errorf("port range %d-%d outside 1-65535", r.Start, r.End)
	}
	if r.Start > r.End {
		return fmt.Errorf("port range start %d greater than end %d", r.Start, r.End)
	}
	return nil
}

func (r PortRange) Contains(port int) bool {
	return port >= r.Start && port <= r.End
}

func (r PortRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }
