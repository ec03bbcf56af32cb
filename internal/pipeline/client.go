package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// jsonCapableClient describes a client that can import Xray-JSON documents
// in place of base64 links. A zero minVersion accepts every version.
type jsonCapableClient struct {
	re         *regexp.Regexp
	minVersion []int
}

var jsonCapableClients = []jsonCapableClient{
	{re: regexp.MustCompile(`(?i)^happ/`)},
	{re: regexp.MustCompile(`(?i)streisand`)},
	{re: regexp.MustCompile(`(?i)^incy`)},
	{re: regexp.MustCompile(`(?i)^v2rayng/(\d+(?:\.\d+)*)`), minVersion: []int{1, 8, 29}},
	{re: regexp.MustCompile(`(?i)^v2rayn/(\d+(?:\.\d+)*)`), minVersion: []int{6, 40}},
}

// SupportsXrayJSON reports whether the User-Agent belongs to a client that
// understands Xray-JSON subscriptions.
func SupportsXrayJSON(userAgent string) bool {
	ua := strings.TrimSpace(userAgent)
	for _, c := range jsonCapableClients {
		m := c.re.FindStringSubmatch(ua)
		if m == nil {
			continue
		}
		if len(c.minVersion) == 0 {
			return true
		}
		return compareVersions(parseVersion(m[1]), c.minVersion) >= 0
	}
	return false
}

func parseVersion(s string) []int {
	parts := strings.Split(s, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		out = append(out, n)
	}
	return out
}

// compareVersions compares dotted versions; missing components count as 0.
func compareVersions(a, b []int) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
