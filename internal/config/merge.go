// SPDX-License-Identifier: MPL-2.0

package config

// mergeMaps merges src onto dst and returns dst: scalar and slice values in
// src override dst; nested maps are merged shallowly key-by-key, except a
// key literally named "env" at any depth, which is deep-merged (later keys
// override earlier ones within the env map itself).
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, sv := range src {
		if k == "env" {
			dst[k] = mergeEnv(asStringMap(dst[k]), asStringMap(sv))
			continue
		}

		dvRaw, exists := dst[k]
		if !exists {
			dst[k] = sv
			continue
		}

		dm, dIsMap := dvRaw.(map[string]any)
		sm, sIsMap := sv.(map[string]any)
		if dIsMap && sIsMap {
			dst[k] = mergeMaps(dm, sm)
			continue
		}
		dst[k] = sv
	}
	return dst
}

func asStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		if sm, ok := v.(map[string]string); ok {
			return sm
		}
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

// mergeEnv deep-merges two env maps: later keys (src) override earlier ones
// (dst). It is associative: merge(a, merge(b, c)) == merge(merge(a, b), c).
func mergeEnv(dst, src map[string]string) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
