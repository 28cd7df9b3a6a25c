package domain

import "sort"

// FilterByTags returns the pins whose tag set contains every selected tag
// (AND semantics). An empty selection is the identity filter. Input order
// is preserved and the input slice is never mutated.
func FilterByTags(pins []Pin, selected []string) []Pin {
	if len(selected) == 0 {
		return pins
	}

	out := make([]Pin, 0, len(pins))
	for _, p := range pins {
		if hasAllTags(p.Tags, selected) {
			out = append(out, p)
		}
	}
	return out
}

func hasAllTags(have, want []string) bool {
	if len(want) > len(have) {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// ExtractUniqueTags unions every pin's tags into a deduplicated,
// lexicographically sorted slice. Used to populate tag pickers.
func ExtractUniqueTags(pins []Pin) []string {
	seen := make(map[string]struct{})
	for _, p := range pins {
		for _, t := range p.Tags {
			seen[t] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
