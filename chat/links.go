package chat

import (
	"context"
	"fmt"
	"html"
	"strings"

	"socrates/storage"
)

const (
	maxKeywords  = 4
	maxLinks     = 3
	likeEscapeCh = `\`
)

// Link is a suggested bookmark returned with an assistant reply.
type Link struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ShownLink is a bookmark previously suggested in a chat.
type ShownLink struct {
	ID    int64  `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// SuggestLinks finds up to three published bookmarks related to response.
// The best RAKE phrase is cut to four words and every ordering of those
// words, and of the subsets one and two words shorter, is tried as a
// substring pattern against bookmark titles and excerpts.
func (e *Engine) SuggestLinks(ctx context.Context, response string) ([]storage.Bookmark, error) {
	text := html.UnescapeString(e.stripper.Sanitize(response))
	keywords := TopKeywords(text, maxKeywords)
	if len(keywords) == 0 {
		return nil, nil
	}

	wildcards := make([]string, len(keywords))
	for i, k := range keywords {
		wildcards[i] = "%" + escapeLike(k) + "%"
	}

	found, err := e.store.SearchPublishedBookmarks(ctx, Combinations(wildcards), maxLinks)
	if err != nil {
		return nil, fmt.Errorf("search bookmarks: %w", err)
	}
	return found, nil
}

// Combinations returns the space-joined orderings of words, then of every
// subset missing one word, then of every subset missing two. With two words
// or fewer only the full orderings are produced. Repeats are dropped,
// keeping first occurrences.
func Combinations(words []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(sets [][]string) {
		for _, p := range sets {
			s := strings.Join(p, " ")
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}

	add(Permutations(words))
	if len(words) <= 2 {
		return out
	}

	for i := range words {
		add(Permutations(without(words, i)))
	}
	for i := range words {
		for j := range words {
			if j != i {
				add(Permutations(without(words, i, j)))
			}
		}
	}
	return out
}

// Permutations returns every ordering of items. Each level picks items from
// last to first and prepends them, so [a b] yields [a b] then [b a].
func Permutations(items []string) [][]string {
	return permute(items, nil)
}

func permute(items, prefix []string) [][]string {
	if len(items) == 0 {
		return [][]string{prefix}
	}

	var out [][]string
	for i := len(items) - 1; i >= 0; i-- {
		rest := make([]string, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)

		next := make([]string, 0, len(prefix)+1)
		next = append(next, items[i])
		next = append(next, prefix...)

		out = append(out, permute(rest, next)...)
	}
	return out
}

// without returns words minus the words at the given positions. Repeated
// words at other positions are kept.
func without(words []string, positions ...int) []string {
	out := make([]string, 0, len(words))
	for i, w := range words {
		skip := false
		for _, p := range positions {
			if i == p {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, w)
		}
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(likeEscapeCh, likeEscapeCh+likeEscapeCh, "%", likeEscapeCh+"%", "_", likeEscapeCh+"_").Replace(s)
}

// LinksForPrompt returns the bookmarks shown alongside the assistant message
// at index promptID of the user's chat. Only odd indices from 3 carry links:
// message 3 maps to links_shown[0], message 5 to links_shown[1].
func (e *Engine) LinksForPrompt(ctx context.Context, userID, chatID string, promptID int) ([]ShownLink, error) {
	if promptID < 3 || promptID%2 == 0 || !ValidChatID(chatID) || userID == "" {
		return []ShownLink{}, nil
	}

	chats, err := e.store.GetChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	c, ok := chats[chatID]
	if !ok {
		return []ShownLink{}, nil
	}

	idx := (promptID+1)/2 - 2
	if idx >= len(c.LinksShown) || len(c.LinksShown[idx]) == 0 {
		return []ShownLink{}, nil
	}

	bookmarks, err := e.store.GetBookmarksByIDs(ctx, c.LinksShown[idx])
	if err != nil {
		return nil, fmt.Errorf("load shown bookmarks: %w", err)
	}

	out := make([]ShownLink, 0, len(bookmarks))
	for _, b := range bookmarks {
		out = append(out, ShownLink{ID: b.ID, URL: b.URL, Title: b.Title})
	}
	return out, nil
}
