// Package ledger classifies a vote request against the voter's current
// record and computes the score delta it implies.
//
// Decide is a pure function: it performs no I/O. The caller must read the
// existing record inside the same transaction that applies the result,
// otherwise the decision can be made against stale state.
package ledger

import "github.com/sakif/postboard/internal/model"

// Kind is the classification of a vote request.
type Kind int

const (
	// NoOp: the voter already holds the requested value. Nothing is written.
	NoOp Kind = iota
	// Create: the voter has no record for the post yet.
	Create
	// Switch: the voter flips an existing vote to the opposite value.
	Switch
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Switch:
		return "switch"
	default:
		return "noop"
	}
}

// Transition is the outcome of Decide.
//
// Delta is applied to Post.Score in one increment:
//
//	Create  → +v
//	Switch  → +2v   (removing -v and adding +v changes the sum by 2v)
//	NoOp    →  0
type Transition struct {
	Kind  Kind
	Value int // the value the record holds after the transition
	Delta int
}

// Decide returns the transition for desired (+1 or -1) given the voter's
// existing record, which is nil when the voter has not voted on the post.
//
// desired must already be validated with model.ValidVoteValue.
func Decide(existing *model.VoteRecord, desired int) Transition {
	switch {
	case existing == nil:
		return Transition{Kind: Create, Value: desired, Delta: desired}
	case existing.Value == desired:
		return Transition{Kind: NoOp, Value: desired, Delta: 0}
	default:
		return Transition{Kind: Switch, Value: desired, Delta: 2 * desired}
	}
}

// Writes reports whether the transition touches the store at all.
func (t Transition) Writes() bool {
	return t.Kind != NoOp
}
