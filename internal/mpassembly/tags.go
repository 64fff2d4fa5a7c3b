package mpassembly

// ignoredTagKeys are excluded from every tag comparison and from the final
// reconciled tag set: they describe metadata about the way/relation itself,
// not the feature it represents.
var ignoredTagKeys = map[string]struct{}{
	"type":       {},
	"created_by": {},
	"source":     {},
	"note":       {},
}

func ignoreTag(key string) bool {
	_, ok := ignoredTagKeys[key]
	return ok
}

// untagged reports whether tags carries no information beyond the ignored
// keys.
func untagged(tags map[string]string) bool {
	for k := range tags {
		if !ignoreTag(k) {
			return false
		}
	}
	return true
}

// sameTags reports whether a and b carry identical tags once ignored keys
// are excluded.
func sameTags(a, b map[string]string) bool {
	for k, v := range a {
		if ignoreTag(k) {
			continue
		}
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	for k := range b {
		if ignoreTag(k) {
			continue
		}
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

// mergeTags copies every non-ignored key from src into dst that dst does not
// already define. dst wins on conflict.
func mergeTags(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = map[string]string{}
	}
	for k, v := range src {
		if ignoreTag(k) {
			continue
		}
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

func cloneFilteredTags(src map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range src {
		if ignoreTag(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// reconcileTags implements the relation/outer-way tag policy: the relation's
// own tags win when present and non-empty; otherwise fall back to the tags
// of the (single) outer way that carries them, warning if more than one
// outer way is tagged and they disagree.
func reconcileTags(rel RelationInput, outerWays []*wayInfo) (map[string]string, []Warning) {
	var warnings []Warning

	if !untagged(rel.Tags) {
		return cloneFilteredTags(rel.Tags), warnings
	}

	var result map[string]string
	for _, wi := range outerWays {
		if wi.source == nil || untagged(wi.source.Tags) {
			continue
		}
		if result == nil {
			result = cloneFilteredTags(wi.source.Tags)
			continue
		}
		if !sameTags(result, wi.source.Tags) {
			warnings = append(warnings, Warning{
				Kind:   warnTagCollision,
				Detail: "outer ways carry conflicting tags; keeping the first seen",
			})
		}
	}
	if result == nil {
		result = map[string]string{}
	}
	return result, warnings
}
