package render

import (
	"strings"
	"testing"
)

func FuzzParseEarlyData(f *testing.F) {
	for _, s := range []string{"", "/", "/ws?ed=2048", "/ws?a=b&ed=1", "?ed=", "/x?%", "/p?ed=65536"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, p string) {
		ed, err := parseEarlyData(p)
		if err != nil {
			return
		}
		if ed.Set && (ed.Max < 0 || ed.Max > maxEarlyData) {
			t.Fatalf("early data out of range: %d", ed.Max)
		}
		if ed.Set && strings.Contains(ed.Path, "ed=") && !strings.Contains(p, "ed=") {
			t.Fatalf("path gained ed parameter: %q -> %q", p, ed.Path)
		}
	})
}
