package app

import (
	"context"

	"contest-service/internal/domain"
)

// FindMatch scans the lobby room's memberships, most recently joined first,
// for a waiting user in the same grade as the caller. The boundary is
// expected to remove the caller's own lobby membership before matching.
func (s *ContestService) FindMatch(ctx context.Context, user domain.User) (domain.Membership, bool, error) {
	profile, err := s.store.Profile(ctx, user.ID)
	if err != nil {
		return domain.Membership{}, false, err
	}
	members, err := s.store.Members(ctx, s.lobbyRoomID)
	if err != nil {
		return domain.Membership{}, false, err
	}
	for i := len(members) - 1; i >= 0; i-- {
		candidate, err := s.store.Profile(ctx, members[i].UserID)
		if err != nil {
			return domain.Membership{}, false, err
		}
		if candidate.Grade == profile.Grade {
			return members[i], true, nil
		}
	}
	return domain.Membership{}, false, nil
}

// CreateRoom persists a room titled from both usernames and grants both
// users access. No collision checks are made against concurrent matches.
func (s *ContestService) CreateRoom(ctx context.Context, first, second domain.User) (domain.Room, error) {
	room := domain.Room{Title: first.Username + "  vs  " + second.Username}
	if err := s.store.CreateRoom(ctx, &room); err != nil {
		return domain.Room{}, err
	}
	if err := s.store.GrantAccess(ctx, room.ID, first.ID); err != nil {
		return domain.Room{}, err
	}
	if err := s.store.GrantAccess(ctx, room.ID, second.ID); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}
