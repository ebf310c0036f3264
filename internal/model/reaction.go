package model

// ToggleReaction merges one user's reaction into rs:
// the same emoji again removes it, a different emoji replaces it in place,
// and no prior entry appends. The input slice is not modified.
func ToggleReaction(rs []Reaction, userID, emoji string) []Reaction {
	out := make([]Reaction, 0, len(rs)+1)
	found := false
	for _, r := range rs {
		if r.UserID != userID {
			out = append(out, r)
			continue
		}
		if found {
			// collapse legacy duplicates from the same user
			continue
		}
		found = true
		if r.Emoji != emoji {
			out = append(out, Reaction{UserID: userID, Emoji: emoji})
		}
	}
	if !found {
		out = append(out, Reaction{UserID: userID, Emoji: emoji})
	}
	return out
}
