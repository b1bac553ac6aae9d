package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func reaction(userID, emoji string) Reaction {
	return Reaction{MessageID: "m1", UserID: userID, Emoji: emoji}
}

func TestAggregateReactions_OrderAndTotal(t *testing.T) {
	req := require.New(t)

	// Given two users on the party emoji and one each on the others
	records := []Reaction{
		reaction("u1", "🎉"),
		reaction("u2", "🎉"),
		reaction("u3", "👍"),
		reaction("u4", "🔥"),
	}

	summary := AggregateReactions(records)

	// Then counts order by count desc, ties by emoji codepoint asc
	req.Equal([]EmojiCount{
		{Emoji: "🎉", Count: 2},
		{Emoji: "👍", Count: 1},
		{Emoji: "🔥", Count: 1},
	}, summary.Counts)

	req.NotNil(summary.TopReaction)
	req.Equal("🎉", *summary.TopReaction)

	// Total counts raw records, not distinct emojis
	req.Equal(4, summary.TotalReactions)
}

func TestAggregateReactions_TiedTopOrdersByCodepoint(t *testing.T) {
	req := require.New(t)

	var records []Reaction
	for i := 0; i < 3; i++ {
		records = append(records,
			reaction(fmt.Sprintf("thumb-%d", i), "👍"),
			reaction(fmt.Sprintf("party-%d", i), "🎉"),
		)
	}
	records = append(records, reaction("fire-0", "🔥"))

	summary := AggregateReactions(records)

	// {👍:3, 🎉:3, 🔥:1} orders as [🎉, 👍, 🔥]
	req.Equal([]EmojiCount{
		{Emoji: "🎉", Count: 3},
		{Emoji: "👍", Count: 3},
		{Emoji: "🔥", Count: 1},
	}, summary.Counts)
	req.Equal(7, summary.TotalReactions)
}

func TestAggregateReactions_TieBreakIsDeterministic(t *testing.T) {
	req := require.New(t)

	records := []Reaction{
		reaction("u1", "🔥"),
		reaction("u2", "👍"),
	}

	// 👍 (U+1F44D) sorts before 🔥 (U+1F525)
	summary := AggregateReactions(records)

	req.Equal("👍", summary.Counts[0].Emoji)
	req.Equal("👍", *summary.TopReaction)
}

func TestAggregateReactions_Empty(t *testing.T) {
	req := require.New(t)

	summary := AggregateReactions(nil)

	req.Empty(summary.Counts)
	req.Nil(summary.TopReaction)
	req.Zero(summary.TotalReactions)
}
