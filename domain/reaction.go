package domain

import "sort"

// Reaction is keyed by (message, user, emoji) in the store. The relay never
// caches reactions; summaries are recomputed in full on every change.
type Reaction struct {
	MessageID string
	UserID    string
	Emoji     string
}

type EmojiCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

type ReactionSummary struct {
	Counts         []EmojiCount `json:"counts"`
	TopReaction    *string      `json:"topReaction"`
	TotalReactions int          `json:"totalReactions"`
}

// AggregateReactions computes the emoji-count summary for one message.
// Counts are ordered by count descending, ties broken by emoji codepoint
// ascending. TotalReactions counts raw records, not distinct emojis.
func AggregateReactions(records []Reaction) ReactionSummary {
	byEmoji := make(map[string]int, len(records))
	for _, r := range records {
		byEmoji[r.Emoji]++
	}

	counts := make([]EmojiCount, 0, len(byEmoji))
	for emoji, count := range byEmoji {
		counts = append(counts, EmojiCount{Emoji: emoji, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Emoji < counts[j].Emoji
	})

	summary := ReactionSummary{
		Counts:         counts,
		TotalReactions: len(records),
	}
	if len(counts) > 0 {
		top := counts[0].Emoji
		summary.TopReaction = &top
	}
	return summary
}
