package mapper

// UnknownRank is returned for any status string the mapper doesn't
// recognize. Per spec §4.1/§9, an unknown rank bypasses the regression
// guard by default; RejectUnknownRankTarget (DESIGN.md Open Question #4)
// lets an operator opt into the stricter behavior.
const UnknownRank = -1

// AllowsTransition reports whether moving from currentRank to
// targetRank is allowed under the rank guard (spec §4.1): a transition
// is rejected only if targetRank is strictly lower than currentRank.
// Unknown target ranks (UnknownRank) are allowed unless
// rejectUnknownTarget is set, closing the spec's open question in favor
// of configurability rather than a single hardcoded choice.
func AllowsTransition(currentRank, targetRank int, rejectUnknownTarget bool) bool {
	if targetRank == UnknownRank {
		return !rejectUnknownTarget
	}
	if currentRank == UnknownRank {
		return true
	}
	return targetRank >= currentRank
}
