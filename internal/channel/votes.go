/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

// SummarizeVotes reduces the per-listener vote records into the summary
// attached to a history entry. The owning DJ's own vote never counts. A
// listener who both starred and noped the track is reclassified as one
// boofStar and contributes nothing to the plain star or nope totals.
func SummarizeVotes(votes map[string]*Vote, ownerID string, listeners int) VoteSummary {
	summary := VoteSummary{Listeners: listeners}
	for userID, v := range votes {
		if userID == ownerID || v == nil {
			continue
		}
		summary.Dope += v.Dope
		summary.Chat += v.Chat
		summary.VotedCount += v.VotedCount
		if v.Boofed() {
			summary.BoofStar++
		} else {
			summary.Star += v.Star
			summary.Nope += v.Nope
		}
	}
	return summary
}

// Score derives the play score from a summary. Boofs score highest; the
// reaction is rare and deliberate.
func Score(s VoteSummary) int {
	return s.Dope - s.Nope + 3*s.Star + 4*s.BoofStar
}

// voterIDs returns the ids of non-owner voters matching the predicate, for
// the broker's finished-play payload.
func voterIDs(votes map[string]*Vote, ownerID string, match func(*Vote) bool) []string {
	ids := []string{}
	for userID, v := range votes {
		if userID == ownerID || v == nil {
			continue
		}
		if match(v) {
			ids = append(ids, userID)
		}
	}
	return ids
}

// DopeVoters returns ids that upvoted.
func DopeVoters(votes map[string]*Vote, ownerID string) []string {
	return voterIDs(votes, ownerID, func(v *Vote) bool { return v.Dope > 0 })
}

// NopeVoters returns ids that downvoted without bookmarking.
func NopeVoters(votes map[string]*Vote, ownerID string) []string {
	return voterIDs(votes, ownerID, func(v *Vote) bool { return v.Nope > 0 && v.Star == 0 })
}

// BookmarkVoters returns ids that starred without downvoting.
func BookmarkVoters(votes map[string]*Vote, ownerID string) []string {
	return voterIDs(votes, ownerID, func(v *Vote) bool { return v.Star > 0 && v.Nope == 0 })
}

// BoofVoters returns ids that starred and downvoted together.
func BoofVoters(votes map[string]*Vote, ownerID string) []string {
	return voterIDs(votes, ownerID, func(v *Vote) bool { return v.Boofed() })
}
