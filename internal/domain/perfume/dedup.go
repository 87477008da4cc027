package perfume

import "sort"

// DuplicateGroup is one strict-fingerprint partition with more than one
// member.  Excluded is ordered by rating count descending, then input order.
type DuplicateGroup struct {
	Fingerprint string
	Kept        RawRecord
	Excluded    []RawRecord
}

// DedupResult is the before/after partition produced by Deduplicate.
type DedupResult struct {
	// Survivors holds one record per distinct strict fingerprint in their
	// original relative order.
	Survivors []RawRecord
	// Fingerprints is parallel to Survivors.
	Fingerprints []string
	// Groups lists every collapsed partition, ordered by first appearance.
	Groups     []DuplicateGroup
	InputCount int
}

// Removed returns how many input records were discarded.
func (r DedupResult) Removed() int {
	return r.InputCount - len(r.Survivors)
}

// Deduplicate partitions records by strict fingerprint and keeps one
// survivor per partition: the highest rating count, ties going to the record
// seen first.  Input without duplicates passes through unchanged.
func Deduplicate(records []RawRecord) DedupResult {
	return DeduplicateBy(records, StrictKey)
}

// DeduplicateBy is Deduplicate with a caller-supplied identity function.
func DeduplicateBy(records []RawRecord, key func(RawRecord) string) DedupResult {
	type partition struct {
		key     string
		members []int
		best    int
	}

	keys := make([]string, len(records))
	index := make(map[string]*partition, len(records))
	order := make([]*partition, 0, len(records))

	for i, rec := range records {
		k := key(rec)
		keys[i] = k
		p, ok := index[k]
		if !ok {
			p = &partition{key: k, best: i}
			index[k] = p
			order = append(order, p)
		} else if rec.RatingCount > records[p.best].RatingCount {
			p.best = i
		}
		p.members = append(p.members, i)
	}

	res := DedupResult{InputCount: len(records)}
	kept := make([]bool, len(records))
	for _, p := range order {
		kept[p.best] = true
		if len(p.members) < 2 {
			continue
		}
		g := DuplicateGroup{Fingerprint: p.key, Kept: records[p.best]}
		for _, m := range p.members {
			if m != p.best {
				g.Excluded = append(g.Excluded, records[m])
			}
		}
		sort.SliceStable(g.Excluded, func(a, b int) bool {
			return g.Excluded[a].RatingCount > g.Excluded[b].RatingCount
		})
		res.Groups = append(res.Groups, g)
	}

	res.Survivors = make([]RawRecord, 0, len(order))
	res.Fingerprints = make([]string, 0, len(order))
	for i, rec := range records {
		if kept[i] {
			res.Survivors = append(res.Survivors, rec)
			res.Fingerprints = append(res.Fingerprints, keys[i])
		}
	}
	return res
}
