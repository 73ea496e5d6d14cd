// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"

	"github.com/xec-sh/xec/internal/dag"
)

// ErrProfileCycle is the sentinel wrapped by *ProfileCycleError.
var ErrProfileCycle = errors.New("profile cycle")

// ProfileCycleError reports a profile `extends` cycle, carrying the
// offending cycle path. It wraps internal/dag.CycleError's node list with
// the profile-specific error identity callers match on.
type ProfileCycleError struct {
	Cycle []string
}

func (e *ProfileCycleError) Error() string {
	return fmt.Sprintf("profile extends cycle: %v", e.Cycle)
}

func (e *ProfileCycleError) Unwrap() error { return ErrProfileCycle }

// resolveProfile flattens name's `extends` inheritance chain into one
// effective Profile, checking for cycles via a topological sort over the
// `extends` edges of every profile in profiles.
func resolveProfile(profiles map[string]Profile, name string) (Profile, error) {
	if err := checkProfileAcyclic(profiles); err != nil {
		return Profile{}, err
	}

	chain, err := extendsChain(profiles, name)
	if err != nil {
		return Profile{}, err
	}

	// chain is ordered from the named profile back to its oldest ancestor;
	// apply ancestor-to-descendant so the named profile's own fields win.
	effective := Profile{}
	for i := len(chain) - 1; i >= 0; i-- {
		effective = mergeProfile(effective, chain[i])
	}
	return effective, nil
}

func checkProfileAcyclic(profiles map[string]Profile) error {
	g := dag.New()
	for name := range profiles {
		g.AddNode(name)
	}
	for name, p := range profiles {
		if p.Extends != "" {
			g.AddEdge(p.Extends, name)
		}
	}
	if _, err := g.TopologicalSort(); err != nil {
		var cycleErr *dag.CycleError
		if errors.As(err, &cycleErr) {
			return &ProfileCycleError{Cycle: cycleErr.Cycle}
		}
		return err
	}
	return nil
}

func extendsChain(profiles map[string]Profile, name string) ([]Profile, error) {
	var chain []Profile
	seen := map[string]bool{}
	cur := name
	for cur != "" {
		if seen[cur] {
			return nil, &ProfileCycleError{Cycle: []string{cur}}
		}
		seen[cur] = true

		p, ok := profiles[cur]
		if !ok {
			return nil, fmt.Errorf("profile %q not found", cur)
		}
		chain = append(chain, p)
		cur = p.Extends
	}
	return chain, nil
}

func mergeProfile(dst, src Profile) Profile {
	if src.Defaults != nil {
		if dst.Defaults == nil {
			d := *src.Defaults
			dst.Defaults = &d
		} else {
			merged := mergeDefaults(*dst.Defaults, *src.Defaults)
			dst.Defaults = &merged
		}
	}
	dst.Hosts = mergeHostMap(dst.Hosts, src.Hosts)
	dst.Containers = mergeContainerMap(dst.Containers, src.Containers)
	dst.Pods = mergePodMap(dst.Pods, src.Pods)
	return dst
}

func mergeDefaults(dst, src Defaults) Defaults {
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if src.Shell != "" {
		dst.Shell = src.Shell
	}
	if src.Cwd != "" {
		dst.Cwd = src.Cwd
	}
	if src.Encoding != "" {
		dst.Encoding = src.Encoding
	}
	if src.ThrowOnNonZeroExit != nil {
		dst.ThrowOnNonZeroExit = src.ThrowOnNonZeroExit
	}
	if len(src.Env) > 0 {
		merged := make(map[string]string, len(dst.Env)+len(src.Env))
		for k, v := range dst.Env {
			merged[k] = v
		}
		for k, v := range src.Env {
			merged[k] = v
		}
		dst.Env = merged
	}
	return dst
}

func mergeHostMap(dst, src map[string]HostConfig) map[string]HostConfig {
	if len(src) == 0 {
		return dst
	}
	out := make(map[string]HostConfig, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func mergeContainerMap(dst, src map[string]ContainerConfig) map[string]ContainerConfig {
	if len(src) == 0 {
		return dst
	}
	out := make(map[string]ContainerConfig, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func mergePodMap(dst, src map[string]PodConfig) map[string]PodConfig {
	if len(src) == 0 {
		return dst
	}
	out := make(map[string]PodConfig, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
