package board

import "laneboard/internal/statusgraph"

// Decision is the outcome of a successful validation. NeedsReason tells the
// caller a reason must accompany the move; the prompt is the question to ask.
type Decision struct {
	NeedsReason  bool   `json:"needs_reason"`
	ReasonPrompt string `json:"reason_prompt,omitempty"`
}

// ValidateMove checks a status change against the graph. It is pure: no
// writes, no clock, same inputs same answer. Checks run structure first,
// then milestone completion, then reason; the first failure wins.
//
// A self-transition is always legal and carries no requirements, so a
// rank-only drop inside a lane is never blocked by that lane's own rules.
func ValidateMove(g *statusgraph.Graph, isAdmin bool, fromID, toID string, milestoneProgress int) (Decision, error) {
	if fromID == toID {
		return Decision{}, nil
	}
	if !g.CanMove(fromID, toID, isAdmin) {
		return Decision{}, IllegalTransitionError{From: fromID, To: toID}
	}
	req := g.Requirements(toID)
	if req.Milestones && milestoneProgress < req.MilestoneThreshold {
		return Decision{}, MilestonesIncompleteError{Status: toID, Progress: milestoneProgress, Threshold: req.MilestoneThreshold}
	}
	if req.Reason {
		prompt := req.ReasonPrompt
		if prompt == "" {
			prompt = "Why is this project moving to " + toID + "?"
		}
		return Decision{NeedsReason: true, ReasonPrompt: prompt}, nil
	}
	return Decision{}, nil
}
