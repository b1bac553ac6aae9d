package domain

import "sort"

// votersPreviewLimit caps the per-option recent-voter preview.
const votersPreviewLimit = 3

type OptionCount struct {
	OptionID string `json:"optionId"`
	Count    int    `json:"count"`
}

// Tally is the aggregated view of a poll for one requesting user.
type Tally struct {
	Totals         []OptionCount       `json:"totals"`
	VotersByOption map[string][]string `json:"votersByOption"`
	MyVotes        []string            `json:"myVotes"`
}

// ComputeTally aggregates raw vote records against the poll's declared
// options. Totals are zero-filled and follow the declared option order, so
// the result is deterministic per call. VotersByOption keeps the three most
// recent voter ids per option, newest first. MyVotes lists the options the
// requesting user currently holds, in declared order.
func ComputeTally(optionIDs []string, votes []Vote, userID string) Tally {
	byOption := make(map[string][]Vote, len(optionIDs))
	for _, v := range votes {
		byOption[v.OptionID] = append(byOption[v.OptionID], v)
	}

	tally := Tally{
		Totals:         make([]OptionCount, 0, len(optionIDs)),
		VotersByOption: make(map[string][]string, len(optionIDs)),
		MyVotes:        []string{},
	}

	for _, optionID := range optionIDs {
		optionVotes := byOption[optionID]
		tally.Totals = append(tally.Totals, OptionCount{
			OptionID: optionID,
			Count:    len(optionVotes),
		})

		sort.SliceStable(optionVotes, func(i, j int) bool {
			return optionVotes[i].CreatedAt.After(optionVotes[j].CreatedAt)
		})

		voters := make([]string, 0, votersPreviewLimit)
		for _, v := range optionVotes {
			if len(voters) == votersPreviewLimit {
				break
			}
			voters = append(voters, v.UserID)
		}
		tally.VotersByOption[optionID] = voters

		for _, v := range optionVotes {
			if v.UserID == userID {
				tally.MyVotes = append(tally.MyVotes, optionID)
				break
			}
		}
	}

	return tally
}
