package model

import "time"

// UserSecrets is the per-user credential material a subscription is rendered for.
type UserSecrets struct {
	ID        uint
	ShortUUID string
	Username  string
	SquadID   uint

	VLESSUUID      string
	TrojanPassword string
	SSPassword     string

	ExpireAt     time.Time // zero means never
	TrafficUsed  int64     // bytes
	TrafficLimit int64     // bytes; 0 means unlimited
}
