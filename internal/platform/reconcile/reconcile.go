// Package reconcile computes the set difference between the child rows
// currently stored for a parent and the rows a caller wants stored.
package reconcile

// Result is the outcome of a key diff.
type Result[K comparable] struct {
	Added   []K
	Removed []K
	Kept    []K
}

// Empty reports whether applying the diff would change nothing.
func (r Result[K]) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// Diff compares two key sets. Added and Kept follow desired order, Removed
// follows current order. Duplicate keys are collapsed.
func Diff[K comparable](current, desired []K) Result[K] {
	have := make(map[K]struct{}, len(current))
	for _, k := range current {
		have[k] = struct{}{}
	}
	want := make(map[K]struct{}, len(desired))

	var res Result[K]
	for _, k := range desired {
		if _, dup := want[k]; dup {
			continue
		}
		want[k] = struct{}{}
		if _, ok := have[k]; ok {
			res.Kept = append(res.Kept, k)
		} else {
			res.Added = append(res.Added, k)
		}
	}

	seen := make(map[K]struct{}, len(current))
	for _, k := range current {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := want[k]; !ok {
			res.Removed = append(res.Removed, k)
		}
	}
	return res
}

// ItemResult is the outcome of an item diff.
type ItemResult[T any, K comparable] struct {
	Added   []T
	Updated []T
	Removed []K
}

// Items diffs child rows that carry their own key. A desired item whose key is
// the zero value is new. A desired item whose key is not stored is treated as
// new as well so the caller can insert it with the supplied key.
func Items[T any, K comparable](current []K, desired []T, key func(T) K) ItemResult[T, K] {
	var zero K
	have := make(map[K]struct{}, len(current))
	for _, k := range current {
		have[k] = struct{}{}
	}

	var res ItemResult[T, K]
	kept := make(map[K]struct{}, len(desired))
	for _, item := range desired {
		k := key(item)
		if k == zero {
			res.Added = append(res.Added, item)
			continue
		}
		if _, dup := kept[k]; dup {
			continue
		}
		kept[k] = struct{}{}
		if _, ok := have[k]; ok {
			res.Updated = append(res.Updated, item)
		} else {
			res.Added = append(res.Added, item)
		}
	}

	for _, k := range current {
		if _, ok := kept[k]; !ok {
			res.Removed = append(res.Removed, k)
			kept[k] = struct{}{}
		}
	}
	return res
}

// Summary counts the rows a reconcile touched.
type Summary struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

func (r Result[K]) Summary() Summary {
	return Summary{Added: len(r.Added), Removed: len(r.Removed)}
}

func (r ItemResult[T, K]) Summary() Summary {
	return Summary{Added: len(r.Added), Updated: len(r.Updated), Removed: len(r.Removed)}
}
