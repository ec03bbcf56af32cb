package model

// SkippedHost records a host that was left out of a payload and why.
// Skips are per-host and never fail the whole request.
type SkippedHost struct {
	HostID uint   `json:"hostId"`
	Remark string `json:"remark"`
	Reason string `json:"reason"`
}
