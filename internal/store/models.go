package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

type userRecord struct {
	ID             uint   `gorm:"primaryKey"`
	ShortUUID      string `gorm:"column:short_uuid;uniqueIndex;not null;size:64"`
	Username       string `gorm:"size:128"`
	SquadID        uint   `gorm:"index"`
	VLESSUUID      string `gorm:"column:vless_uuid;size:36"`
	TrojanPassword string `gorm:"size:128"`
	SSPassword     string `gorm:"column:ss_password;size:128"`
	ExpireAt       *time.Time
	TrafficUsed    int64
	TrafficLimit   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (userRecord) TableName() string { return "users" }

type hostRecord struct {
	ID       uint `gorm:"primaryKey"`
	SquadID  uint `gorm:"index:idx_hosts_squad_position,priority:1"`
	Position int  `gorm:"index:idx_hosts_squad_position,priority:2"`

	Remark   string `gorm:"size:255"`
	Protocol string `gorm:"not null;size:16"`
	Network  string `gorm:"not null;size:16;default:tcp"`
	Address  string `gorm:"not null;size:255"`
	Port     int    `gorm:"not null"`

	Security               string `gorm:"not null;size:16;default:none"`
	SNI                    string `gorm:"column:sni;size:255"`
	ALPN                   string `gorm:"column:alpn;size:64"`
	Fingerprint            string `gorm:"size:64"`
	AllowInsecure          bool   `gorm:"not null;default:false"`
	OverrideSNIFromAddress bool   `gorm:"column:override_sni_from_address;not null;default:false"`

	Path       string `gorm:"size:512"`
	HostHeader string `gorm:"size:255"`
	PublicKey  string `gorm:"size:255"`
	ShortID    string `gorm:"size:32"`
	SpiderX    string `gorm:"size:255"`
	Flow       string `gorm:"size:32"`

	ServiceName string `gorm:"size:255"`
	Authority   string `gorm:"size:255"`
	MultiMode   bool
	HeaderType  string `gorm:"size:16"`

	XHTTPMode  string         `gorm:"column:xhttp_mode;size:32"`
	XHTTPExtra map[string]any `gorm:"column:xhttp_extra;serializer:json;type:text"`
	Mux        map[string]any `gorm:"serializer:json;type:text"`
	Sockopt    map[string]any `gorm:"serializer:json;type:text"`

	XrayTemplate string `gorm:"type:text"`
	Tag          string `gorm:"size:64;index"`
	Disabled     bool   `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (hostRecord) TableName() string { return "hosts" }

type hostOverrideRecord struct {
	ID         uint `gorm:"primaryKey"`
	SquadID    uint `gorm:"uniqueIndex:idx_override_squad_host,priority:1"`
	HostID     uint `gorm:"uniqueIndex:idx_override_squad_host,priority:2"`
	Address    *string
	Port       *int
	Remark     *string
	SNI        *string `gorm:"column:sni"`
	HostHeader *string
	UpdatedAt  time.Time
}

func (hostOverrideRecord) TableName() string { return "host_overrides" }

type templateRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Type      string `gorm:"uniqueIndex:idx_template_type_name,priority:1;not null;size:16"`
	Name      string `gorm:"uniqueIndex:idx_template_type_name,priority:2;not null;size:128"`
	Content   string `gorm:"type:text"`
	SourceURL string `gorm:"column:source_url;size:2048"`
	UpdatedAt time.Time
}

func (templateRecord) TableName() string { return "templates" }

// rulesConfigRecord holds the whole rules document; only the newest row is
// active.
type rulesConfigRecord struct {
	ID        uint              `gorm:"primaryKey"`
	Version   string            `gorm:"size:32"`
	Config    model.RulesConfig `gorm:"serializer:json;type:text"`
	CreatedAt time.Time
}

func (rulesConfigRecord) TableName() string { return "response_rules" }

func (r *userRecord) toModel() *model.UserSecrets {
	u := &model.UserSecrets{
		ID:             r.ID,
		ShortUUID:      r.ShortUUID,
		Username:       r.Username,
		SquadID:        r.SquadID,
		VLESSUUID:      r.VLESSUUID,
		TrojanPassword: r.TrojanPassword,
		SSPassword:     r.SSPassword,
		TrafficUsed:    r.TrafficUsed,
		TrafficLimit:   r.TrafficLimit,
	}
	if r.ExpireAt != nil {
		u.ExpireAt = *r.ExpireAt
	}
	return u
}

func userFromModel(u *model.UserSecrets) *userRecord {
	r := &userRecord{
		ID:             u.ID,
		ShortUUID:      u.ShortUUID,
		Username:       u.Username,
		SquadID:        u.SquadID,
		VLESSUUID:      u.VLESSUUID,
		TrojanPassword: u.TrojanPassword,
		SSPassword:     u.SSPassword,
		TrafficUsed:    u.TrafficUsed,
		TrafficLimit:   u.TrafficLimit,
	}
	if !u.ExpireAt.IsZero() {
		t := u.ExpireAt
		r.ExpireAt = &t
	}
	return r
}

func (r *hostRecord) toModel() model.Host {
	return model.Host{
		ID:                     r.ID,
		SquadID:                r.SquadID,
		Position:               r.Position,
		Remark:                 r.Remark,
		Protocol:               model.Protocol(r.Protocol),
		Network:                model.Network(r.Network),
		Address:                r.Address,
		Port:                   r.Port,
		Security:               model.Security(r.Security),
		SNI:                    r.SNI,
		ALPN:                   r.ALPN,
		Fingerprint:            r.Fingerprint,
		AllowInsecure:          r.AllowInsecure,
		OverrideSNIFromAddress: r.OverrideSNIFromAddress,
		Path:                   r.Path,
		HostHeader:             r.HostHeader,
		PublicKey:              r.PublicKey,
		ShortID:                r.ShortID,
		SpiderX:                r.SpiderX,
		Flow:                   r.Flow,
		ServiceName:            r.ServiceName,
		Authority:              r.Authority,
		MultiMode:              r.MultiMode,
		HeaderType:             r.HeaderType,
		XHTTPMode:              r.XHTTPMode,
		XHTTPExtra:             r.XHTTPExtra,
		Mux:                    r.Mux,
		Sockopt:                r.Sockopt,
		XrayTemplate:           r.XrayTemplate,
		Tag:                    r.Tag,
		Disabled:               r.Disabled,
	}
}

func hostFromModel(h *model.Host) *hostRecord {
	return &hostRecord{
		ID:                     h.ID,
		SquadID:                h.SquadID,
		Position:               h.Position,
		Remark:                 h.Remark,
		Protocol:               string(h.Protocol),
		Network:                string(h.Network),
		Address:                h.Address,
		Port:                   h.Port,
		Security:               string(h.Security),
		SNI:                    h.SNI,
		ALPN:                   h.ALPN,
		Fingerprint:            h.Fingerprint,
		AllowInsecure:          h.AllowInsecure,
		OverrideSNIFromAddress: h.OverrideSNIFromAddress,
		Path:                   h.Path,
		HostHeader:             h.HostHeader,
		PublicKey:              h.PublicKey,
		ShortID:                h.ShortID,
		SpiderX:                h.SpiderX,
		Flow:                   h.Flow,
		ServiceName:            h.ServiceName,
		Authority:              h.Authority,
		MultiMode:              h.MultiMode,
		HeaderType:             h.HeaderType,
		XHTTPMode:              h.XHTTPMode,
		XHTTPExtra:             h.XHTTPExtra,
		Mux:                    h.Mux,
		Sockopt:                h.Sockopt,
		XrayTemplate:           h.XrayTemplate,
		Tag:                    h.Tag,
		Disabled:               h.Disabled,
	}
}

// BeforeCreate fills the same defaults the formatter assumes.
func (r *hostRecord) BeforeCreate(_ *gorm.DB) error {
	if r.Network == "" {
		r.Network = string(model.NetworkTCP)
	}
	if r.Security == "" {
		r.Security = string(model.SecurityNone)
	}
	return nil
}
