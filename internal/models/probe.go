package models

// ProbeResult is the structured outcome of a single reachability check.
type ProbeResult struct {
	Attempted       bool // false if the check could not be carried out, e.g. unresolvable name
	PacketsSent     int
	PacketsReceived int
	Diagnostic      string
}

// Reachable reports full success: every packet sent came back.
func (r *ProbeResult) Reachable() bool {
	return r != nil && r.Attempted && r.PacketsSent > 0 && r.PacketsReceived == r.PacketsSent
}

// PacketsLost returns the number of packets without a reply.
func (r *ProbeResult) PacketsLost() int {
	if r == nil {
		return 0
	}
	return r.PacketsSent - r.PacketsReceived
}
