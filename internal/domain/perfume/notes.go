package perfume

import "strings"

// ExtractList splits a comma-delimited list, trims and cleans each item,
// drops empties and removes duplicates keeping the first occurrence.
func (c *NoteCleaner) ExtractList(blob string) []string {
	if strings.TrimSpace(blob) == "" {
		return []string{}
	}
	out := make([]string, 0, 8)
	seen := make(map[string]struct{}, 8)
	for _, piece := range strings.Split(blob, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		cleaned := c.Clean(piece)
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// AllNotes concatenates the cleaned top, middle and base lists.  Duplicates
// across layers are kept: the length counts pyramid entries.  When the
// pyramid is empty the accord list is used instead, split and cleaned in a
// single pass without deduplication.
func (c *NoteCleaner) AllNotes(r RawRecord) []string {
	top := c.ExtractList(r.TopNotes)
	mid := c.ExtractList(r.MiddleNotes)
	base := c.ExtractList(r.BaseNotes)

	all := make([]string, 0, len(top)+len(mid)+len(base))
	all = append(all, top...)
	all = append(all, mid...)
	all = append(all, base...)
	if len(all) > 0 {
		return all
	}
	return c.splitClean(r.MainAccords)
}

func (c *NoteCleaner) splitClean(blob string) []string {
	out := []string{}
	if blob == "" {
		return out
	}
	for _, piece := range strings.Split(blob, ",") {
		if cleaned := c.Clean(piece); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// ExtractListCleaned is ExtractList with the default vocabulary.
func ExtractListCleaned(blob string) []string {
	return DefaultNoteCleaner().ExtractList(blob)
}

// GetAllNotes is AllNotes with the default vocabulary.
func GetAllNotes(r RawRecord) []string {
	return DefaultNoteCleaner().AllNotes(r)
}
