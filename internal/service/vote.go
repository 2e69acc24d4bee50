package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/ledger"
	"github.com/sakif/postboard/internal/metrics"
	"github.com/sakif/postboard/internal/model"
)

// VoteService is the entry point for casting votes.
//
// It validates the request, then hands the read-decide-write cycle to the
// ScoreAggregator. If the store reports contention (apperror.ErrConflict)
// the whole cycle is retried exactly once from a fresh read; a second
// conflict is returned to the caller.
type VoteService struct {
	aggregator *ScoreAggregator
	metrics    *metrics.Registry
	logger     *slog.Logger
}

func NewVoteService(aggregator *ScoreAggregator, m *metrics.Registry, logger *slog.Logger) *VoteService {
	return &VoteService{
		aggregator: aggregator,
		metrics:    m,
		logger:     logger,
	}
}

// CastVote records userID's vote of value (+1 or -1) on postID.
//
// It returns (false, nil) when the post does not exist, and (true, nil)
// once the vote is committed, including when it was a NoOp repeat.
func (s *VoteService) CastVote(ctx context.Context, userID, postID string, value int) (bool, error) {
	if userID == "" {
		return false, apperror.Unauthenticated()
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return false, apperror.ValidationFailed("postId", "post ID is required")
	}
	if !model.ValidVoteValue(value) {
		return false, apperror.ValidationFailed("value", "vote value must be 1 or -1")
	}

	tr, err := s.aggregator.Apply(ctx, userID, postID, value)
	if errors.Is(err, apperror.ErrConflict) {
		s.metrics.VoteRetried()
		s.logger.Debug("vote conflict, retrying",
			slog.String("userID", userID),
			slog.String("postID", postID),
		)
		tr, err = s.aggregator.Apply(ctx, userID, postID, value)
	}

	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			return false, nil
		case errors.Is(err, apperror.ErrConflict):
			s.metrics.VoteConflict()
			s.logger.Warn("vote conflict after retry",
				slog.String("userID", userID),
				slog.String("postID", postID),
			)
			return false, err
		default:
			s.logger.Error("failed to cast vote",
				slog.String("userID", userID),
				slog.String("postID", postID),
				slog.String("error", err.Error()),
			)
			return false, fmt.Errorf("casting vote: %w", err)
		}
	}

	s.metrics.VoteApplied(tr.Kind.String())
	if tr.Kind != ledger.NoOp {
		s.logger.Info("vote cast",
			slog.String("userID", userID),
			slog.String("postID", postID),
			slog.String("transition", tr.Kind.String()),
			slog.Int("delta", tr.Delta),
		)
	}

	return true, nil
}
