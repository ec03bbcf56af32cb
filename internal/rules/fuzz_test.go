package rules

import (
	"net/http"
	"testing"
)

func FuzzParseConfig(f *testing.F) {
	seed := []string{
		"",
		"{}",
		`{"version":"1","rules":[]}`,
		`{"version":"1","rules":[{"name":"a","enabled":true,"operator":"AND","conditions":[],"responseType":"BLOCK"}]}`,
		"version: \"1\"\nrules:\n  - name: x\n    enabled: true\n    operator: OR\n    responseType: CLASH\n    conditions:\n      - headerName: User-Agent\n        operator: REGEX\n        value: clash\n",
		"version: 1\nrules: [",
	}
	for _, s := range seed {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, in string) {
		cfg, err := ParseConfig("fuzz", []byte(in))
		if err != nil {
			return
		}
		ev, err := Compile(cfg)
		if err != nil {
			t.Fatalf("parsed config failed to compile: %v", err)
		}
		d, err := ev.Evaluate(http.Header{"User-Agent": []string{"fuzz"}})
		if err == nil && !d.ResponseType.Valid() {
			t.Fatalf("invalid response type %q", d.ResponseType)
		}
	})
}
