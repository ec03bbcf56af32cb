package httpapi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/subresponse-go/internal/pipeline"
	"github.com/John-Robertt/subresponse-go/internal/render"
)

// setSubscriptionHeaders sets the de-facto headers proxy clients read for
// profile name, refresh period and quota display.
func setSubscriptionHeaders(w http.ResponseWriter, res *pipeline.Result, opt Options) {
	h := w.Header()
	if name := outputFileName(res); name != "" {
		h.Set("Content-Disposition", contentDispositionAttachment(name))
	}
	if title := strings.TrimSpace(opt.ProfileTitle); title != "" {
		h.Set("Profile-Title", "base64:"+base64.StdEncoding.EncodeToString([]byte(title)))
	}
	h.Set("Profile-Update-Interval", strconv.Itoa(opt.UpdateIntervalHours))
	if opt.SupportURL != "" {
		h.Set("Support-Url", opt.SupportURL)
	}
	if res.User != nil {
		h.Set("Subscription-Userinfo", subscriptionUserinfo(res))
	}
	h.Set("Cache-Control", "no-store")
}

func subscriptionUserinfo(res *pipeline.Result) string {
	u := res.User
	var expire int64
	if !u.ExpireAt.IsZero() {
		expire = u.ExpireAt.Unix()
	}
	return fmt.Sprintf("upload=0; download=%d; total=%d; expire=%d", u.TrafficUsed, u.TrafficLimit, expire)
}

func outputFileName(res *pipeline.Result) string {
	if res.User == nil {
		return ""
	}
	base := strings.TrimSpace(res.User.Username)
	if base == "" {
		base = res.User.ShortUUID
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '\r', '\n', 0:
			return '_'
		}
		return r
	}, base)
	base = truncateRunes(base, 200)
	if base == "" {
		return ""
	}
	if !hasExt(base) {
		base += defaultExt(res.Target)
	}
	return base
}

func hasExt(name string) bool {
	i := strings.LastIndexByte(name, '.')
	return i > 0 && i < len(name)-1
}

func defaultExt(t render.Target) string {
	switch t {
	case render.TargetMihomo, render.TargetClash, render.TargetStash:
		return ".yaml"
	case render.TargetSingBox, render.TargetXrayJSON, render.TargetRaw, render.TargetOutline:
		return ".json"
	case render.TargetXrayBase64:
		return ".txt"
	default:
		return ""
	}
}

func contentDispositionAttachment(filename string) string {
	// RFC 6266 + RFC 5987.
	escaped := strings.ReplaceAll(filename, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")

	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", escaped, pctEncode(filename))
}

func pctEncode(s string) string {
	// QueryEscape uses '+' for spaces; rewrite to %20 for stability.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	cut := 0
	for cut < len(s) {
		_, n := utf8.DecodeRuneInString(s[cut:])
		if cut+n > max {
			break
		}
		cut += n
	}
	return s[:cut]
}
