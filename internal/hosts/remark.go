package hosts

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

const unlimited = "∞"

func remarkVars(user model.UserSecrets, now time.Time) map[string]string {
	vars := map[string]string{
		"{{USERNAME}}":      user.Username,
		"{{SHORT_UUID}}":    user.ShortUUID,
		"{{TRAFFIC_USED}}":  FormatBytes(user.TrafficUsed),
		"{{TOTAL_TRAFFIC}}": unlimited,
		"{{TRAFFIC_LEFT}}":  unlimited,
		"{{DAYS_LEFT}}":     unlimited,
		"{{EXPIRE_DATE}}":   unlimited,
	}
	if user.TrafficLimit > 0 {
		vars["{{TOTAL_TRAFFIC}}"] = FormatBytes(user.TrafficLimit)
		vars["{{TRAFFIC_LEFT}}"] = FormatBytes(max(user.TrafficLimit-user.TrafficUsed, 0))
	}
	if !user.ExpireAt.IsZero() {
		vars["{{DAYS_LEFT}}"] = fmt.Sprintf("%d", DaysLeft(user.ExpireAt, now))
		vars["{{EXPIRE_DATE}}"] = user.ExpireAt.UTC().Format("2006-01-02")
	}
	return vars
}

func expandRemark(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return strings.TrimSpace(tmpl)
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(tmpl))
}

// DaysLeft rounds up partial days and never goes below zero.
func DaysLeft(expire, now time.Time) int {
	d := expire.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// FormatBytes renders a byte count with binary units, e.g. "1.50 GiB".
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", max(n, 0))
	}
	units := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	v := float64(n)
	i := -1
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, units[i])
}

// assignUniqueRemarks makes remarks unique in input order: the first keeps its
// name, later duplicates become name-2, name-3, ... Empty remarks fall back to
// address:port.
func assignUniqueRemarks(in []model.FormattedHost) {
	used := make(map[string]struct{}, len(in))
	for i := range in {
		base := strings.TrimSpace(in[i].Remark)
		if base == "" {
			base = fmt.Sprintf("%s:%d", in[i].Address, in[i].Port)
		}

		name := base
		if _, ok := used[name]; ok {
			for n := 2; ; n++ {
				try := fmt.Sprintf("%s-%d", base, n)
				if _, ok := used[try]; ok {
					continue
				}
				name = try
				break
			}
		}

		in[i].Remark = name
		used[name] = struct{}{}
	}
}
