// Package hosts turns stored hosts plus a user's secrets into FormattedHost
// records that every generator can consume without further defaulting.
package hosts

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/net/idna"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

// Format is FormatAt with the current time.
func Format(in []model.Host, user model.UserSecrets, overrides map[uint]model.Override) ([]model.FormattedHost, []model.SkippedHost) {
	return FormatAt(in, user, overrides, time.Now())
}

// FormatAt formats hosts in input order. Disabled hosts are dropped silently;
// hosts that cannot be formatted are reported in the second return value.
// now only feeds remark variables such as {{DAYS_LEFT}}.
func FormatAt(in []model.Host, user model.UserSecrets, overrides map[uint]model.Override, now time.Time) ([]model.FormattedHost, []model.SkippedHost) {
	vars := remarkVars(user, now)
	out := make([]model.FormattedHost, 0, len(in))
	var skipped []model.SkippedHost

	for _, h := range in {
		if h.Disabled {
			continue
		}
		if ov, ok := overrides[h.ID]; ok {
			h = applyOverride(h, ov)
		}
		fh, err := formatOne(h, user, vars)
		if err != nil {
			skipped = append(skipped, model.SkippedHost{HostID: h.ID, Remark: h.Remark, Reason: err.Error()})
			continue
		}
		out = append(out, fh)
	}

	assignUniqueRemarks(out)
	return out, skipped
}

func applyOverride(h model.Host, ov model.Override) model.Host {
	if ov.Address != nil {
		h.Address = *ov.Address
	}
	if ov.Port != nil {
		h.Port = *ov.Port
	}
	if ov.Remark != nil {
		h.Remark = *ov.Remark
	}
	if ov.SNI != nil {
		h.SNI = *ov.SNI
	}
	if ov.HostHeader != nil {
		h.HostHeader = *ov.HostHeader
	}
	return h
}

func formatOne(h model.Host, user model.UserSecrets, vars map[string]string) (model.FormattedHost, error) {
	addr, err := toASCII(strings.TrimSpace(h.Address))
	if err != nil {
		return model.FormattedHost{}, fmt.Errorf("invalid address %q: %w", h.Address, err)
	}
	if addr == "" {
		return model.FormattedHost{}, fmt.Errorf("empty address")
	}
	if h.Port <= 0 || h.Port > 65535 {
		return model.FormattedHost{}, fmt.Errorf("invalid port %d", h.Port)
	}

	fh := model.FormattedHost{
		HostID:        h.ID,
		Tag:           h.Tag,
		Protocol:      h.Protocol,
		Network:       h.Network,
		Address:       addr,
		Port:          h.Port,
		Security:      h.Security,
		Fingerprint:   strings.TrimSpace(h.Fingerprint),
		AllowInsecure: h.AllowInsecure,
		Path:          h.Path,
		HostHeader:    strings.TrimSpace(h.HostHeader),
		PublicKey:     h.PublicKey,
		ShortID:       h.ShortID,
		SpiderX:       h.SpiderX,
		Flow:          h.Flow,
		ServiceName:   h.ServiceName,
		Authority:     h.Authority,
		MultiMode:     h.MultiMode,
		HeaderType:    strings.ToLower(strings.TrimSpace(h.HeaderType)),
		XHTTPMode:     h.XHTTPMode,
		XHTTPExtra:    orEmpty(h.XHTTPExtra),
		Mux:           orEmpty(h.Mux),
		Sockopt:       orEmpty(h.Sockopt),
		XrayTemplate:  h.XrayTemplate,
		ALPN:          splitALPN(h.ALPN),
	}
	if fh.Network == "" {
		fh.Network = model.NetworkTCP
	}
	if fh.Security == "" {
		fh.Security = model.SecurityNone
	}

	switch h.Protocol {
	case model.ProtocolVLESS:
		id, err := uuid.Parse(strings.TrimSpace(user.VLESSUUID))
		if err != nil {
			return model.FormattedHost{}, fmt.Errorf("user has no valid vless uuid: %w", err)
		}
		fh.Password = id.String()
	case model.ProtocolTrojan:
		if user.TrojanPassword == "" {
			return model.FormattedHost{}, fmt.Errorf("user has no trojan password")
		}
		fh.Password = user.TrojanPassword
	case model.ProtocolShadowsocks:
		if user.SSPassword == "" {
			return model.FormattedHost{}, fmt.Errorf("user has no shadowsocks password")
		}
		fh.Password = user.SSPassword
		fh.Cipher = model.ShadowsocksCipher
	default:
		return model.FormattedHost{}, fmt.Errorf("unsupported protocol %q", h.Protocol)
	}

	sni := strings.TrimSpace(h.SNI)
	if h.OverrideSNIFromAddress {
		sni = addr
	}
	if fh.SNI, err = toASCII(sni); err != nil {
		return model.FormattedHost{}, fmt.Errorf("invalid sni %q: %w", sni, err)
	}

	fh.Remark = expandRemark(h.Remark, vars)
	return fh, nil
}

// toASCII converts internationalised domain names to punycode. IP literals
// and plain ASCII names pass through untouched.
func toASCII(s string) (string, error) {
	if s == "" || isASCII(s) {
		return s, nil
	}
	return idna.Lookup.ToASCII(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func splitALPN(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Uniq(lo.Filter(parts, func(p string, _ int) bool { return p != "" }))
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
