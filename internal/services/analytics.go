package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/postmod/apiserver/types"
)

// DateLayout is the calendar date format used by analytics queries.
const DateLayout = "2006-01-02"

// CommentActivity is the read side needed for analytics.
type CommentActivity interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]types.Comment, error)
}

type AnalyticsService struct {
	comments CommentActivity
}

func NewAnalyticsService(comments CommentActivity) *AnalyticsService {
	return &AnalyticsService{comments: comments}
}

// CommentsDailyBreakdown counts created and blocked comments per UTC day
// from the start of dateFrom to the end of dateTo. Days without comments
// are omitted.
func (s *AnalyticsService) CommentsDailyBreakdown(ctx context.Context, dateFrom, dateTo time.Time) ([]types.DailyCommentStats, error) {
	from := truncateDay(dateFrom)
	to := truncateDay(dateTo)
	if from.After(to) {
		return nil, fmt.Errorf("%w: date_from must not be after date_to", ErrValidation)
	}

	comments, err := s.comments.ListCreatedBetween(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*types.DailyCommentStats)
	for _, comment := range comments {
		day := comment.CreatedAt.UTC().Format(DateLayout)
		stats, ok := byDay[day]
		if !ok {
			stats = &types.DailyCommentStats{Date: day}
			byDay[day] = stats
		}
		stats.Created++
		if comment.IsBlocked {
			stats.Blocked++
		}
	}

	breakdown := make([]types.DailyCommentStats, 0, len(byDay))
	for _, stats := range byDay {
		breakdown = append(breakdown, *stats)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].Date < breakdown[j].Date
	})
	return breakdown, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
