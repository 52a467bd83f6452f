package app

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"contest-service/internal/domain"
)

// RoomStore holds rooms, their access grants, the answered-question relation
// and room memberships.
type RoomStore interface {
	Room(ctx context.Context, id int64) (domain.Room, error)
	CreateRoom(ctx context.Context, room *domain.Room) error
	GrantAccess(ctx context.Context, roomID, userID int64) error
	AnsweredQuestionIDs(ctx context.Context, roomID int64) ([]int64, error)
	MarkAnswered(ctx context.Context, roomID, questionID int64) error
	// Members returns a room's memberships ordered by join time, oldest first.
	Members(ctx context.Context, roomID int64) ([]domain.Membership, error)
	// MembershipFor returns the user's membership record, if any.
	MembershipFor(ctx context.Context, userID int64) (domain.Membership, bool, error)
}

// ProfileStore reads and writes per-user grade/level profiles. A missing
// profile reads as the zero profile; SaveLevel upserts.
type ProfileStore interface {
	Profile(ctx context.Context, userID int64) (domain.Profile, error)
	SaveLevel(ctx context.Context, userID int64, level int) error
}

// ScoreStore holds the per-user contest score. A missing row is the normal
// first-interaction state, reported through the bool.
type ScoreStore interface {
	Score(ctx context.Context, userID int64) (int, bool, error)
	SaveScore(ctx context.Context, userID int64, score int) error
}

// AnswerKeyStore persists per-round correct-answer indices.
type AnswerKeyStore interface {
	CreateAnswerKey(ctx context.Context, answerIndex int) (int64, error)
	AnswerKey(ctx context.Context, recordID int64) (int, error)
}

// HistoryStore appends and lists judged answers per user.
type HistoryStore interface {
	AppendHistory(ctx context.Context, record *domain.LearnRecord) error
	HistoryFor(ctx context.Context, userID int64) ([]domain.LearnRecord, error)
}

// Store is the external entity store behind all contest state.
type Store interface {
	RoomStore
	ProfileStore
	ScoreStore
	AnswerKeyStore
	HistoryStore
}

// QuestionCatalog serves the immutable question set, usually through a cache.
type QuestionCatalog interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

// SlotStore is the ephemeral cache behind the turn/start rendezvous. A slot
// holds at most one claimant id; expiry is owned by the cache.
type SlotStore interface {
	Claimant(ctx context.Context, key string) (string, bool, error)
	Claim(ctx context.Context, key, claimant string) error
	Clear(ctx context.Context, key string) error
}

// Settings are the contest knobs; zero values fall back to defaults.
type Settings struct {
	MaxQuestions int   // questions served per contest (default 3)
	LobbyRoomID  int64 // room scanned by the matchmaker (default 1)
}

// ContestService contains the contest use cases.
type ContestService struct {
	store   Store
	catalog QuestionCatalog
	slots   SlotStore

	maxQuestions int
	lobbyRoomID  int64
	rnd          *rand.Rand
}

func NewContestService(store Store, catalog QuestionCatalog, slots SlotStore, settings Settings) *ContestService {
	if settings.MaxQuestions <= 0 {
		settings.MaxQuestions = 3
	}
	if settings.LobbyRoomID == 0 {
		settings.LobbyRoomID = 1
	}
	return &ContestService{
		store:        store,
		catalog:      catalog,
		slots:        slots,
		maxQuestions: settings.MaxQuestions,
		lobbyRoomID:  settings.LobbyRoomID,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetRoom resolves a room for the caller, checking permissions along the way.
func (s *ContestService) GetRoom(ctx context.Context, roomID int64, user domain.User) (domain.Room, error) {
	if user.ID == 0 {
		return domain.Room{}, domain.ErrUserNotAuthenticated
	}
	room, err := s.store.Room(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.StaffOnly && !user.Staff {
		return domain.Room{}, domain.ErrRoomAccessDenied
	}
	return room, nil
}

// IsInOtherRoom reports whether the user is currently engaged in another
// contest room. One membership lookup per call; a known hot spot.
func (s *ContestService) IsInOtherRoom(ctx context.Context, user domain.User) (bool, error) {
	membership, ok, err := s.store.MembershipFor(ctx, user.ID)
	if err != nil || !ok {
		return false, err
	}
	return membership.InRoom != nil, nil
}

// DrawQuestion serves one random unanswered question for the room, or the
// contest-end sentinel once the per-contest limit is reached or the catalog
// is exhausted. The drawn question is marked answered for the room and the
// shuffled correct index is persisted as a fresh answer key whose id closes
// the payload.
func (s *ContestService) DrawQuestion(ctx context.Context, room domain.Room) (string, error) {
	answered, err := s.store.AnsweredQuestionIDs(ctx, room.ID)
	if err != nil {
		return "", err
	}
	if len(answered) > s.maxQuestions-1 {
		return domain.ContestEnded, nil
	}

	questions, err := s.catalog.Questions(ctx)
	if err != nil {
		return "", err
	}
	seen := make(map[int64]struct{}, len(answered))
	for _, id := range answered {
		seen[id] = struct{}{}
	}
	var remaining []domain.Question
	for _, q := range questions {
		if _, ok := seen[q.ID]; !ok {
			remaining = append(remaining, q)
		}
	}
	if len(remaining) == 0 {
		return domain.ContestEnded, nil
	}

	q := remaining[s.rnd.Intn(len(remaining))]
	if err := s.store.MarkAnswered(ctx, room.ID, q.ID); err != nil {
		return "", err
	}

	choices := []string{q.Choice1, q.Choice2, q.Choice3, q.Answer}
	s.rnd.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	answerIndex := 0
	for i, choice := range choices {
		if choice == q.Answer {
			answerIndex = i
			break
		}
	}

	recordID, err := s.store.CreateAnswerKey(ctx, answerIndex)
	if err != nil {
		return "", err
	}
	parts := append(choices, q.Content, strconv.FormatInt(recordID, 10))
	return strings.Join(parts, domain.PayloadDelimiter), nil
}

// CheckAnswer judges a submitted choice index against the stored answer key.
func (s *ContestService) CheckAnswer(ctx context.Context, recordID int64, answerIndex int) (bool, error) {
	correct, err := s.store.AnswerKey(ctx, recordID)
	if err != nil {
		return false, err
	}
	return correct == answerIndex, nil
}

// AddScore increments the user's contest score, creating the row on first use.
func (s *ContestService) AddScore(ctx context.Context, user domain.User, delta int) error {
	current, ok, err := s.store.Score(ctx, user.ID)
	if err != nil {
		return err
	}
	if !ok {
		return s.store.SaveScore(ctx, user.ID, delta)
	}
	return s.store.SaveScore(ctx, user.ID, current+delta)
}

// ResetScore zeroes the user's contest score before a new contest.
func (s *ContestService) ResetScore(ctx context.Context, user domain.User) error {
	return s.store.SaveScore(ctx, user.ID, 0)
}

// Score returns the user's current contest score; a missing row reads as 0.
func (s *ContestService) Score(ctx context.Context, user domain.User) (int, error) {
	score, _, err := s.store.Score(ctx, user.ID)
	return score, err
}

// TurnElapsed runs the per-room turn rendezvous: the first caller claims the
// slot and gets false; a repeat call by the claimant stays false; a call by a
// different user clears the slot and gets true.
func (s *ContestService) TurnElapsed(ctx context.Context, user domain.User, room domain.Room) (bool, error) {
	return s.rendezvous(ctx, turnKey(room.ID), user)
}

// ConfirmStart runs the same rendezvous over the start-confirm slot: it
// reports true once the second distinct participant has confirmed.
func (s *ContestService) ConfirmStart(ctx context.Context, user domain.User, room domain.Room) (bool, error) {
	return s.rendezvous(ctx, startKey(room.ID), user)
}

// rendezvous is a best-effort first-mover-wins protocol over one cache slot.
// The read-then-write sequence is not atomic; concurrent claims may race.
func (s *ContestService) rendezvous(ctx context.Context, key string, user domain.User) (bool, error) {
	claimant, ok, err := s.slots.Claimant(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, s.slots.Claim(ctx, key, strconv.FormatInt(user.ID, 10))
	}
	if claimant == strconv.FormatInt(user.ID, 10) {
		return false, nil
	}
	return true, s.slots.Clear(ctx, key)
}

func turnKey(roomID int64) string  { return fmt.Sprintf("room:%d:turn", roomID) }
func startKey(roomID int64) string { return fmt.Sprintf("room:%d:start", roomID) }

// JudgeOutcome compares the two participants' final scores from the caller's
// side and applies the level adjustment: winner +1, loser -1 floored at 0.
// A solo room always judges to "-"; a caller who is not a participant gets
// "UnknownUser".
func (s *ContestService) JudgeOutcome(ctx context.Context, user domain.User, room domain.Room) (string, error) {
	members, err := s.store.Members(ctx, room.ID)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return domain.VerdictUnknownUser, nil
	}
	first := members[0]
	last := members[len(members)-1]
	if first.UserID == last.UserID {
		return domain.VerdictNone, nil
	}

	firstScore, _, err := s.store.Score(ctx, first.UserID)
	if err != nil {
		return "", err
	}
	lastScore, _, err := s.store.Score(ctx, last.UserID)
	if err != nil {
		return "", err
	}

	var mine, theirs int
	switch user.ID {
	case first.UserID:
		mine, theirs = firstScore, lastScore
	case last.UserID:
		mine, theirs = lastScore, firstScore
	default:
		return domain.VerdictUnknownUser, nil
	}

	switch {
	case mine > theirs:
		if err := s.adjustLevel(ctx, user.ID, 1); err != nil {
			return "", err
		}
		return domain.VerdictWin, nil
	case mine == theirs:
		return domain.VerdictTie, nil
	default:
		if err := s.adjustLevel(ctx, user.ID, -1); err != nil {
			return "", err
		}
		return domain.VerdictLose, nil
	}
}

// adjustLevel applies a bounded rating change. A decrement at level 0 is
// dropped rather than saved.
func (s *ContestService) adjustLevel(ctx context.Context, userID int64, delta int) error {
	profile, err := s.store.Profile(ctx, userID)
	if err != nil {
		return err
	}
	level := profile.Level + delta
	if level < 0 {
		return nil
	}
	return s.store.SaveLevel(ctx, userID, level)
}

// RecordAnswer appends one judged answer to the user's learning history.
// CheckAnswer itself never mutates; history is written separately.
func (s *ContestService) RecordAnswer(ctx context.Context, user domain.User, recordID int64, correct bool) error {
	return s.store.AppendHistory(ctx, &domain.LearnRecord{
		UserID:    user.ID,
		RecordID:  recordID,
		Correct:   correct,
		CreatedAt: time.Now(),
	})
}

// History lists the user's judged answers, oldest first.
func (s *ContestService) History(ctx context.Context, user domain.User) ([]domain.LearnRecord, error) {
	return s.store.HistoryFor(ctx, user.ID)
}
