package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/npezzotti/go-teahub/internal/database"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	// scanBatchSize is how many rows are read per query while filling a
	// page; filtered rows are skipped without another round trip.
	scanBatchSize = 200
)

type PageQuery struct {
	RoomId         int
	BeforeId       int
	PageSize       int
	ShowHistorical bool
}

type Page struct {
	// Messages are in ascending id order.
	Messages []database.Message
	HasMore  bool
	OldestId *int
}

// GetPage returns the page of visible messages immediately older than
// q.BeforeId, or the most recent page when BeforeId is 0.
func (s *Service) GetPage(ctx context.Context, requesterId int, q PageQuery) (Page, error) {
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize < 1 {
		return Page{}, invalid("page_size must be at least 1")
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.BeforeId < 0 {
		return Page{}, invalid("before_id must be positive")
	}

	if _, err := s.GetRoom(ctx, q.RoomId); err != nil {
		return Page{}, err
	}

	membership, err := s.repo.GetMembership(ctx, q.RoomId, requesterId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Page{}, forbidden("you are not a member of this room")
		}
		return Page{}, fmt.Errorf("get membership: %w", err)
	}

	viewer := Viewer{
		UserId:     requesterId,
		JoinedAt:   membership.JoinedAt,
		Historical: q.ShowHistorical,
	}

	newestFirst, err := s.collectVisible(ctx, q.RoomId, q.BeforeId, q.PageSize, viewer)
	if err != nil {
		return Page{}, err
	}

	page := Page{Messages: newestFirst}
	if len(newestFirst) == 0 {
		page.Messages = []database.Message{}
		return page, nil
	}

	slices.Reverse(page.Messages)
	oldest := page.Messages[0].Id
	page.OldestId = &oldest

	more, err := s.collectVisible(ctx, q.RoomId, oldest, 1, viewer)
	if err != nil {
		return Page{}, err
	}
	page.HasMore = len(more) > 0

	return page, nil
}

// collectVisible walks the room backward from beforeId and returns up to
// n messages visible to viewer, newest first.
func (s *Service) collectVisible(ctx context.Context, roomId, beforeId, n int, viewer Viewer) ([]database.Message, error) {
	out := make([]database.Message, 0, n)
	cursor := beforeId

	for len(out) < n {
		batch, err := s.repo.QueryMessages(ctx, roomId, cursor, scanBatchSize)
		if err != nil {
			return nil, fmt.Errorf("query messages: %w", err)
		}

		for _, m := range batch {
			if viewer.CanSee(m) {
				out = append(out, m)
				if len(out) == n {
					return out, nil
				}
			}
		}

		if len(batch) < scanBatchSize {
			break
		}
		cursor = batch[len(batch)-1].Id
	}

	return out, nil
}
