package service

import (
	"context"

	"github.com/sakif/postboard/internal/ledger"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

// ScoreAggregator keeps Post.Score equal to the sum of the post's vote
// records.
//
// THE UNIT OF WORK:
// Everything Apply does runs inside a single Transactor.InTx call:
//
//  1. confirm the post exists          (NotFound otherwise)
//  2. read the voter's current record  (inside the tx, never before it)
//  3. ledger.Decide                    (pure: Create / Switch / NoOp)
//  4. write the record                 (insert, update, or nothing)
//  5. score = score + delta            (only when delta != 0)
//
// Steps 4 and 5 commit together or not at all, so a reader can never see a
// vote record without its score contribution.
type ScoreAggregator struct {
	tx repository.Transactor
}

func NewScoreAggregator(tx repository.Transactor) *ScoreAggregator {
	return &ScoreAggregator{tx: tx}
}

// Apply records desired as userID's vote on postID and returns the
// transition that was committed. desired must be model.Upvote or
// model.Downvote. On error nothing was written.
func (a *ScoreAggregator) Apply(ctx context.Context, userID, postID string, desired int) (ledger.Transition, error) {
	var applied ledger.Transition

	err := a.tx.InTx(ctx, func(tx repository.LedgerTx) error {
		if _, err := tx.PostCreator(ctx, postID); err != nil {
			return err
		}

		existing, err := tx.GetVote(ctx, userID, postID)
		if err != nil {
			return err
		}

		tr := ledger.Decide(existing, desired)
		switch tr.Kind {
		case ledger.NoOp:
			applied = tr
			return nil
		case ledger.Create:
			err = tx.InsertVote(ctx, &model.VoteRecord{UserID: userID, PostID: postID, Value: tr.Value})
		case ledger.Switch:
			err = tx.UpdateVoteValue(ctx, userID, postID, tr.Value)
		}
		if err != nil {
			return err
		}

		if err := tx.AddToScore(ctx, postID, tr.Delta); err != nil {
			return err
		}
		applied = tr
		return nil
	})
	if err != nil {
		return ledger.Transition{}, err
	}

	return applied, nil
}
