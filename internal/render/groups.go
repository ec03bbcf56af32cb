package render

import (
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// PolicyMarkerKey is the proxy-group key that carries the injection policy.
// It is removed from the group before serialisation.
const PolicyMarkerKey = "x-sub-policy"

type GroupPolicy int

const (
	PolicyDefault GroupPolicy = iota
	PolicyRandom
	PolicyShuffle
	PolicyExcluded
)

type policyMarker struct {
	IncludeProxies      *bool `yaml:"include-proxies"`
	SelectRandomProxy   bool  `yaml:"select-random-proxy"`
	ShuffleProxiesOrder bool  `yaml:"shuffle-proxies-order"`
}

// resolve applies the precedence Excluded > Random > Shuffle > Default.
func (m policyMarker) resolve() GroupPolicy {
	switch {
	case m.IncludeProxies != nil && !*m.IncludeProxies:
		return PolicyExcluded
	case m.SelectRandomProxy:
		return PolicyRandom
	case m.ShuffleProxiesOrder:
		return PolicyShuffle
	default:
		return PolicyDefault
	}
}

// groupPolicy reads and strips the marker from a proxy-group mapping.
func groupPolicy(grp *yaml.Node) (GroupPolicy, error) {
	v := deleteKey(grp, PolicyMarkerKey)
	if v == nil {
		return PolicyDefault, nil
	}
	var m policyMarker
	if err := v.Decode(&m); err != nil {
		return PolicyDefault, err
	}
	return m.resolve(), nil
}

// applyGroupPolicy appends generated proxy names to one proxy-group.
func applyGroupPolicy(grp *yaml.Node, names []string) error {
	policy, err := groupPolicy(grp)
	if err != nil {
		return err
	}

	var add []string
	switch policy {
	case PolicyExcluded:
		return nil
	case PolicyRandom:
		if len(names) > 0 {
			add = []string{lo.Sample(names)}
		}
	case PolicyShuffle:
		add = lo.Shuffle(append([]string(nil), names...))
	default:
		add = names
	}
	if len(add) == 0 {
		return nil
	}

	list := ensureSeq(grp, "proxies")
	for _, n := range add {
		list.Content = append(list.Content, strNode(n))
	}
	return nil
}
