package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contest-service/internal/domain"
	"github.com/uptrace/bun"
)

type roomRow struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Title     string `bun:"title,notnull"`
	StaffOnly bool   `bun:"staff_only,notnull,default:false"`
}

type roomGrantRow struct {
	bun.BaseModel `bun:"table:room_grants"`

	RoomID int64 `bun:"room_id,pk"`
	UserID int64 `bun:"user_id,pk"`
}

type roomQuestionRow struct {
	bun.BaseModel `bun:"table:room_questions"`

	RoomID     int64 `bun:"room_id,pk"`
	QuestionID int64 `bun:"question_id,pk"`
}

type membershipRow struct {
	bun.BaseModel `bun:"table:room_profiles"`

	ID       int64     `bun:"id,pk,autoincrement"`
	RoomID   int64     `bun:"room_id,notnull"`
	UserID   int64     `bun:"user_id,notnull"`
	Username string    `bun:"username,notnull,default:''"`
	JoinedAt time.Time `bun:"joined_at,notnull,default:current_timestamp"`
	InRoom   *int64    `bun:"in_room"`
}

type profileRow struct {
	bun.BaseModel `bun:"table:profiles"`

	UserID int64 `bun:"user_id,pk"`
	Grade  int   `bun:"grade,notnull,default:0"`
	Level  int   `bun:"level,notnull,default:0"`
}

type scoreRow struct {
	bun.BaseModel `bun:"table:contest_scores"`

	UserID int64 `bun:"user_id,pk"`
	Score  int   `bun:"score,notnull,default:0"`
}

type answerKeyRow struct {
	bun.BaseModel `bun:"table:answer_keys"`

	ID          int64 `bun:"id,pk,autoincrement"`
	AnswerIndex int   `bun:"answer_index,notnull"`
}

type learnRecordRow struct {
	bun.BaseModel `bun:"table:learn_records"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    int64     `bun:"user_id,notnull"`
	RecordID  int64     `bun:"record_id,notnull"`
	Correct   bool      `bun:"correct,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Content string `bun:"content,notnull"`
	Choice1 string `bun:"choice1,notnull"`
	Choice2 string `bun:"choice2,notnull"`
	Choice3 string `bun:"choice3,notnull"`
	Answer  string `bun:"answer,notnull"`
}

// Store is the bun-backed implementation of app.Store.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Room(ctx context.Context, id int64) (domain.Room, error) {
	row := new(roomRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("load room %d: %w", id, err)
	}
	return domain.Room{ID: row.ID, Title: row.Title, StaffOnly: row.StaffOnly}, nil
}

func (s *Store) CreateRoom(ctx context.Context, room *domain.Room) error {
	row := &roomRow{Title: room.Title, StaffOnly: room.StaffOnly}
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	room.ID = row.ID
	return nil
}

// EnsureRoom inserts a room with a fixed id if it does not exist yet; used to
// provision the lobby.
func (s *Store) EnsureRoom(ctx context.Context, id int64, title string) error {
	row := &roomRow{ID: id, Title: title}
	_, err := s.db.NewInsert().Model(row).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("ensure room %d: %w", id, err)
	}
	return nil
}

func (s *Store) GrantAccess(ctx context.Context, roomID, userID int64) error {
	row := &roomGrantRow{RoomID: roomID, UserID: userID}
	_, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant room %d to user %d: %w", roomID, userID, err)
	}
	return nil
}

func (s *Store) AnsweredQuestionIDs(ctx context.Context, roomID int64) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().
		Model((*roomQuestionRow)(nil)).
		Column("question_id").
		Where("room_id = ?", roomID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("answered questions for room %d: %w", roomID, err)
	}
	return ids, nil
}

func (s *Store) MarkAnswered(ctx context.Context, roomID, questionID int64) error {
	row := &roomQuestionRow{RoomID: roomID, QuestionID: questionID}
	_, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark question %d answered: %w", questionID, err)
	}
	return nil
}

func (s *Store) Members(ctx context.Context, roomID int64) ([]domain.Membership, error) {
	var rows []membershipRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("room_id = ?", roomID).
		Order("joined_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("members of room %d: %w", roomID, err)
	}
	members := make([]domain.Membership, 0, len(rows))
	for _, row := range rows {
		members = append(members, membershipFromRow(row))
	}
	return members, nil
}

func (s *Store) MembershipFor(ctx context.Context, userID int64) (domain.Membership, bool, error) {
	row := new(membershipRow)
	err := s.db.NewSelect().
		Model(row).
		Where("user_id = ?", userID).
		Order("id ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Membership{}, false, nil
	}
	if err != nil {
		return domain.Membership{}, false, fmt.Errorf("membership for user %d: %w", userID, err)
	}
	return membershipFromRow(*row), true, nil
}

// AddMembership joins a user to a room; used by seeding and tests.
func (s *Store) AddMembership(ctx context.Context, membership *domain.Membership) error {
	row := &membershipRow{
		RoomID:   membership.RoomID,
		UserID:   membership.UserID,
		Username: membership.Username,
		JoinedAt: membership.JoinedAt,
		InRoom:   membership.InRoom,
	}
	if row.JoinedAt.IsZero() {
		row.JoinedAt = time.Now()
	}
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("add membership: %w", err)
	}
	membership.ID = row.ID
	membership.JoinedAt = row.JoinedAt
	return nil
}

func (s *Store) Profile(ctx context.Context, userID int64) (domain.Profile, error) {
	row := new(profileRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{UserID: userID}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("profile for user %d: %w", userID, err)
	}
	return domain.Profile{UserID: row.UserID, Grade: row.Grade, Level: row.Level}, nil
}

func (s *Store) SaveLevel(ctx context.Context, userID int64, level int) error {
	row := &profileRow{UserID: userID, Level: level}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("level = EXCLUDED.level").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save level for user %d: %w", userID, err)
	}
	return nil
}

// SaveProfile upserts a full profile; used by seeding and tests.
func (s *Store) SaveProfile(ctx context.Context, profile domain.Profile) error {
	row := &profileRow{UserID: profile.UserID, Grade: profile.Grade, Level: profile.Level}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("grade = EXCLUDED.grade").
		Set("level = EXCLUDED.level").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save profile for user %d: %w", profile.UserID, err)
	}
	return nil
}

func (s *Store) Score(ctx context.Context, userID int64) (int, bool, error) {
	row := new(scoreRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("score for user %d: %w", userID, err)
	}
	return row.Score, true, nil
}

func (s *Store) SaveScore(ctx context.Context, userID int64, score int) error {
	row := &scoreRow{UserID: userID, Score: score}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("score = EXCLUDED.score").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save score for user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) CreateAnswerKey(ctx context.Context, answerIndex int) (int64, error) {
	row := &answerKeyRow{AnswerIndex: answerIndex}
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("create answer key: %w", err)
	}
	return row.ID, nil
}

func (s *Store) AnswerKey(ctx context.Context, recordID int64) (int, error) {
	row := new(answerKeyRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", recordID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrRecordNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("answer key %d: %w", recordID, err)
	}
	return row.AnswerIndex, nil
}

func (s *Store) AppendHistory(ctx context.Context, record *domain.LearnRecord) error {
	row := &learnRecordRow{
		UserID:    record.UserID,
		RecordID:  record.RecordID,
		Correct:   record.Correct,
		CreatedAt: record.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	record.ID = row.ID
	return nil
}

func (s *Store) HistoryFor(ctx context.Context, userID int64) ([]domain.LearnRecord, error) {
	var rows []learnRecordRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("history for user %d: %w", userID, err)
	}
	records := make([]domain.LearnRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.LearnRecord{
			ID:        row.ID,
			UserID:    row.UserID,
			RecordID:  row.RecordID,
			Correct:   row.Correct,
			CreatedAt: row.CreatedAt,
		})
	}
	return records, nil
}

// AddQuestions inserts catalog questions; used by the seed command and tests.
func (s *Store) AddQuestions(ctx context.Context, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, questionRow{
			Content: q.Content,
			Choice1: q.Choice1,
			Choice2: q.Choice2,
			Choice3: q.Choice3,
			Answer:  q.Answer,
		})
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("add questions: %w", err)
	}
	return nil
}

func membershipFromRow(row membershipRow) domain.Membership {
	return domain.Membership{
		ID:       row.ID,
		RoomID:   row.RoomID,
		UserID:   row.UserID,
		Username: row.Username,
		JoinedAt: row.JoinedAt,
		InRoom:   row.InRoom,
	}
}
