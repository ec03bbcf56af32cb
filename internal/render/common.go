package render

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

const (
	defaultFingerprint      = "chrome"
	earlyDataHeaderName     = "Sec-WebSocket-Protocol"
	defaultXHTTPMode        = "auto"
	maxEarlyData        int = 1 << 16
)

// earlyData is the result of splitting "?ed=N" out of a websocket path.
type earlyData struct {
	Path string
	Max  int
	Set  bool
}

// parseEarlyData splits the ed query parameter from p. Other query
// parameters stay on the path. An ed value that is not a non-negative
// integer within maxEarlyData is an error.
func parseEarlyData(p string) (earlyData, error) {
	base, rawQuery, ok := strings.Cut(p, "?")
	if !ok {
		return earlyData{Path: p}, nil
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return earlyData{}, fmt.Errorf("invalid path query %q: %w", rawQuery, err)
	}
	if !q.Has("ed") {
		return earlyData{Path: p}, nil
	}

	raw := q.Get("ed")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxEarlyData {
		return earlyData{}, fmt.Errorf("invalid early data value %q in path", raw)
	}
	q.Del("ed")

	out := earlyData{Path: base, Max: n, Set: true}
	if rest := q.Encode(); rest != "" {
		out.Path = base + "?" + rest
	}
	if out.Path == "" {
		out.Path = "/"
	}
	return out, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// serverName is the TLS name a client should present: SNI when set, else the
// host header, else the address.
func serverName(h model.FormattedHost) string {
	switch {
	case h.SNI != "":
		return h.SNI
	case h.HostHeader != "":
		return h.HostHeader
	default:
		return h.Address
	}
}

func pathOr(p, def string) string {
	if p == "" {
		return def
	}
	return p
}

func isTCPLike(n model.Network) bool {
	return n == model.NetworkTCP || n == model.NetworkRaw
}
