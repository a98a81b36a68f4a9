// Package extract pulls social-media post references out of message text.
package extract

import (
	"regexp"
	"strconv"

	"dedup_bot/internal/model"
)

// Matches twitter/x status links. mobile. and www. prefixes are accepted;
// anything else (photo pages, intents, shortened URLs) is not a post link.
var postURL = regexp.MustCompile(`https?://(?:www\.)?(?:mobile\.)?(?:twitter\.com|x\.com)/([A-Za-z0-9_]+)/status/([0-9]+)`)

// Refs returns every post reference in text, in order of occurrence.
// Repeated links are returned as separate entries; callers decide how
// to treat repeats. Non-matching text yields nil.
func Refs(text string) []model.PostRef {
	matches := postURL.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	refs := make([]model.PostRef, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			// Digit runs too long for a status ID are not post links.
			continue
		}
		refs = append(refs, model.PostRef{AuthorHandle: m[1], PostID: id})
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}
