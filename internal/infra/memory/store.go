package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"contest-service/internal/domain"
)

// Store is an in-memory implementation of app.Store, used in tests and when
// no Postgres URL is configured.
type Store struct {
	mu sync.RWMutex

	rooms      map[int64]domain.Room
	nextRoomID int64

	grants   map[int64]map[int64]struct{}
	answered map[int64][]int64

	memberships      []domain.Membership
	nextMembershipID int64

	profiles map[int64]domain.Profile
	scores   map[int64]int

	answerKeys map[int64]int
	nextKeyID  int64

	history       []domain.LearnRecord
	nextHistoryID int64
}

func NewStore() *Store {
	return &Store{
		rooms:      make(map[int64]domain.Room),
		grants:     make(map[int64]map[int64]struct{}),
		answered:   make(map[int64][]int64),
		profiles:   make(map[int64]domain.Profile),
		scores:     make(map[int64]int),
		answerKeys: make(map[int64]int),
	}
}

func (s *Store) Room(_ context.Context, id int64) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) CreateRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRoomID++
	room.ID = s.nextRoomID
	s.rooms[room.ID] = *room
	return nil
}

func (s *Store) GrantAccess(_ context.Context, roomID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[roomID] == nil {
		s.grants[roomID] = make(map[int64]struct{})
	}
	s.grants[roomID][userID] = struct{}{}
	return nil
}

// Granted reports whether a user has been granted access to a room.
func (s *Store) Granted(roomID, userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[roomID][userID]
	return ok
}

func (s *Store) AnsweredQuestionIDs(_ context.Context, roomID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, len(s.answered[roomID]))
	copy(ids, s.answered[roomID])
	return ids, nil
}

func (s *Store) MarkAnswered(_ context.Context, roomID, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.answered[roomID] {
		if id == questionID {
			return nil
		}
	}
	s.answered[roomID] = append(s.answered[roomID], questionID)
	return nil
}

func (s *Store) Members(_ context.Context, roomID int64) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []domain.Membership
	for _, m := range s.memberships {
		if m.RoomID == roomID {
			members = append(members, m)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func (s *Store) MembershipFor(_ context.Context, userID int64) (domain.Membership, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.UserID == userID {
			return m, true, nil
		}
	}
	return domain.Membership{}, false, nil
}

// AddMembership joins a user to a room; used by seeding and tests.
func (s *Store) AddMembership(_ context.Context, membership *domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMembershipID++
	membership.ID = s.nextMembershipID
	if membership.JoinedAt.IsZero() {
		membership.JoinedAt = time.Now()
	}
	s.memberships = append(s.memberships, *membership)
	return nil
}

func (s *Store) Profile(_ context.Context, userID int64) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{UserID: userID}, nil
	}
	return profile, nil
}

func (s *Store) SaveLevel(_ context.Context, userID int64, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.profiles[userID]
	profile.UserID = userID
	profile.Level = level
	s.profiles[userID] = profile
	return nil
}

// SaveProfile upserts a full profile; used by seeding and tests.
func (s *Store) SaveProfile(_ context.Context, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *Store) Score(_ context.Context, userID int64) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[userID]
	return score, ok, nil
}

func (s *Store) SaveScore(_ context.Context, userID int64, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[userID] = score
	return nil
}

func (s *Store) CreateAnswerKey(_ context.Context, answerIndex int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextKeyID++
	s.answerKeys[s.nextKeyID] = answerIndex
	return s.nextKeyID, nil
}

func (s *Store) AnswerKey(_ context.Context, recordID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, ok := s.answerKeys[recordID]
	if !ok {
		return 0, domain.ErrRecordNotFound
	}
	return index, nil
}

func (s *Store) AppendHistory(_ context.Context, record *domain.LearnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHistoryID++
	record.ID = s.nextHistoryID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	s.history = append(s.history, *record)
	return nil
}

func (s *Store) HistoryFor(_ context.Context, userID int64) ([]domain.LearnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []domain.LearnRecord
	for _, r := range s.history {
		if r.UserID == userID {
			records = append(records, r)
		}
	}
	return records, nil
}
