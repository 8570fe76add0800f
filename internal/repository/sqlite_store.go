package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yuresilva1/inss-study-hub/internal/model"
)

// SQLiteStore is the single-file implementation of Store used for offline
// study and tests. Times are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore over an opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

var _ Store = (*SQLiteStore)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func inClause(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func uuidArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return args
}

const sqliteExamColumns = `id, user_id, subject_ids, mode, status, total_questions, time_limit_minutes,
	score, total_correct, time_spent_seconds, started_at, finished_at`

func scanSQLiteExam(row rowScanner, e *model.Exam) error {
	var (
		subjects     string
		score        sql.NullFloat64
		totalCorrect sql.NullInt64
		spent        sql.NullInt64
		startedAt    int64
		finishedAt   sql.NullInt64
	)
	if err := row.Scan(
		&e.ID, &e.OwnerID, &subjects, &e.Mode, &e.Status, &e.TotalQuestions, &e.TimeLimitMinutes,
		&score, &totalCorrect, &spent, &startedAt, &finishedAt,
	); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(subjects), &e.SubjectIDs); err != nil {
		return fmt.Errorf("decode subject_ids: %w", err)
	}
	if score.Valid {
		e.Score = &score.Float64
	}
	if totalCorrect.Valid {
		v := int(totalCorrect.Int64)
		e.TotalCorrect = &v
	}
	if spent.Valid {
		v := int(spent.Int64)
		e.TimeSpentSeconds = &v
	}
	e.StartedAt = fromMillis(startedAt)
	if finishedAt.Valid {
		t := fromMillis(finishedAt.Int64)
		e.FinishedAt = &t
	}
	return nil
}

func (s *SQLiteStore) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanSQLiteExam(s.db.QueryRowContext(ctx, `SELECT `+sqliteExamColumns+` FROM exams WHERE id = ?`, id.String()), e)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) CreateExam(ctx context.Context, e *model.Exam, questionIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if e.SubjectIDs == nil {
		e.SubjectIDs = []uuid.UUID{}
	}
	subjects, err := json.Marshal(e.SubjectIDs)
	if err != nil {
		return err
	}
	e.ID = uuid.New()
	e.Status = model.ExamStatusInProgress
	e.TotalQuestions = len(questionIDs)
	e.StartedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exams (id, user_id, subject_ids, mode, status, total_questions, time_limit_minutes, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.OwnerID.String(), string(subjects), string(e.Mode), string(e.Status),
		e.TotalQuestions, e.TimeLimitMinutes, toMillis(e.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO exam_answers (id, exam_id, question_id, question_order) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, qid := range questionIDs {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), e.ID.String(), qid.String(), i+1); err != nil {
			return fmt.Errorf("insert answer slot %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) UpdateExam(ctx context.Context, id uuid.UUID, u model.ExamUpdate) error {
	b := &setBuilder{placeholder: question}
	if u.Status != nil {
		b.add("status", string(*u.Status))
	}
	if u.Score != nil {
		b.add("score", *u.Score)
	}
	if u.TotalCorrect != nil {
		b.add("total_correct", *u.TotalCorrect)
	}
	if u.TimeSpentSeconds != nil {
		b.add("time_spent_seconds", *u.TimeSpentSeconds)
	}
	if u.FinishedAt != nil {
		b.add("finished_at", toMillis(*u.FinishedAt))
	}
	if b.empty() {
		return nil
	}

	query := `UPDATE exams SET ` + b.clause() + ` WHERE id = ` + b.arg(id.String())
	if u.WhenStatus != nil {
		query += ` AND status = ` + b.arg(string(*u.WhenStatus))
	}
	res, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.GetExam(ctx, id); err != nil {
		return err
	}
	return model.ErrStatusConflict
}

func (s *SQLiteStore) ListExamsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteExamColumns+` FROM exams WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`,
		ownerID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		var e model.Exam
		if err := scanSQLiteExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

func (s *SQLiteStore) ListStaleExams(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM exams
		 WHERE status = 'in_progress' AND started_at + time_limit_minutes * 60000 < ?
		 ORDER BY started_at LIMIT ?`,
		toMillis(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale exams: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSQLiteSlot(row rowScanner, sl *model.AnswerSlot) error {
	var (
		answer  sql.NullString
		correct sql.NullBool
	)
	if err := row.Scan(&sl.ID, &sl.ExamID, &sl.QuestionID, &sl.Position, &answer, &sl.IsFlagged, &correct, &sl.TimeSpentSeconds); err != nil {
		return err
	}
	if answer.Valid {
		sl.UserAnswer = model.Option(answer.String)
	}
	if correct.Valid {
		sl.IsCorrect = &correct.Bool
	}
	return nil
}

func (s *SQLiteStore) ListAnswerSlots(ctx context.Context, examID uuid.UUID) ([]model.AnswerSlot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exam_id, question_id, question_order, user_answer, is_flagged, is_correct, time_spent_seconds
		 FROM exam_answers WHERE exam_id = ? ORDER BY question_order`, examID.String())
	if err != nil {
		return nil, fmt.Errorf("list answer slots: %w", err)
	}
	defer rows.Close()

	var slots []model.AnswerSlot
	for rows.Next() {
		var sl model.AnswerSlot
		if err := scanSQLiteSlot(rows, &sl); err != nil {
			return nil, err
		}
		slots = append(slots, sl)
	}
	return slots, rows.Err()
}

func updateSQLiteSlot(ctx context.Context, ex execer, id uuid.UUID, u model.SlotUpdate) error {
	b := &setBuilder{placeholder: question}
	if u.UserAnswer != nil {
		b.add("user_answer", nullableOption(*u.UserAnswer))
	}
	if u.IsFlagged != nil {
		b.add("is_flagged", *u.IsFlagged)
	}
	if u.TimeSpentSeconds != nil {
		b.add("time_spent_seconds", *u.TimeSpentSeconds)
	}
	if u.IsCorrect != nil {
		b.add("is_correct", *u.IsCorrect)
	}
	if b.empty() {
		return nil
	}
	res, err := ex.ExecContext(ctx, `UPDATE exam_answers SET `+b.clause()+` WHERE id = `+b.arg(id.String()), b.args...)
	if err != nil {
		return fmt.Errorf("update answer slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateAnswerSlot(ctx context.Context, id uuid.UUID, u model.SlotUpdate) error {
	return updateSQLiteSlot(ctx, s.db, id, u)
}

func (s *SQLiteStore) UpdateAnswerSlots(ctx context.Context, patches []model.SlotPatch) error {
	if len(patches) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, p := range patches {
		if err := updateSQLiteSlot(ctx, tx, p.SlotID, p.Update); err != nil {
			return fmt.Errorf("bulk update answer slots: %w", err)
		}
	}
	return tx.Commit()
}

const sqliteQuestionColumns = `q.id, q.subject_id, COALESCE(s.name, ''), q.statement,
	q.option_a, q.option_b, q.option_c, q.option_d, q.option_e, q.correct_answer, q.explanation`

func scanSQLiteQuestion(row rowScanner, q *model.Question) error {
	var correct string
	if err := row.Scan(
		&q.ID, &q.SubjectID, &q.SubjectName, &q.Statement,
		&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.OptionE,
		&correct, &q.Explanation,
	); err != nil {
		return err
	}
	q.CorrectAnswer = model.Option(correct)
	return nil
}

func (s *SQLiteStore) GetQuestionsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	out := make(map[uuid.UUID]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteQuestionColumns+`
		 FROM questions q LEFT JOIN subjects s ON s.id = q.subject_id
		 WHERE q.id IN `+inClause(len(ids)), uuidArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := scanSQLiteQuestion(rows, &q); err != nil {
			return nil, err
		}
		out[q.ID] = q
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListQuestionIDsBySubjects(ctx context.Context, subjectIDs []uuid.UUID, limit int) ([]uuid.UUID, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	args := append(uuidArgs(subjectIDs), limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM questions WHERE subject_id IN `+inClause(len(subjectIDs))+` LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ListReviewItems(ctx context.Context, examID uuid.UUID) ([]model.ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.question_order, a.user_answer, a.is_correct, `+sqliteQuestionColumns+`
		 FROM exam_answers a
		 JOIN questions q ON q.id = a.question_id
		 LEFT JOIN subjects s ON s.id = q.subject_id
		 WHERE a.exam_id = ?
		 ORDER BY a.question_order`, examID.String())
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()

	items := []model.ReviewItem{}
	for rows.Next() {
		var (
			it      model.ReviewItem
			answer  sql.NullString
			correct sql.NullBool
			key     string
		)
		q := &it.Question
		if err := rows.Scan(
			&it.SlotID, &it.Position, &answer, &correct,
			&q.ID, &q.SubjectID, &q.SubjectName, &q.Statement,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.OptionE,
			&key, &q.Explanation,
		); err != nil {
			return nil, err
		}
		if answer.Valid {
			it.UserAnswer = model.Option(answer.String)
		}
		if correct.Valid {
			it.IsCorrect = &correct.Bool
		}
		q.CorrectAnswer = model.Option(key)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) UpsertSubject(ctx context.Context, name string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		uuid.NewString(), name); err != nil {
		return uuid.Nil, fmt.Errorf("upsert subject: %w", err)
	}
	var id uuid.UUID
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM subjects WHERE name = ?`, name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("upsert subject: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) CreateQuestions(ctx context.Context, questions []model.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (id, subject_id, statement, option_a, option_b, option_c, option_d, option_e, correct_answer, explanation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		if _, err := stmt.ExecContext(ctx,
			q.ID.String(), q.SubjectID.String(), q.Statement,
			q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.OptionE,
			string(q.CorrectAnswer), q.Explanation,
		); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, COUNT(q.id)
		FROM subjects s
		LEFT JOIN questions q ON q.subject_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	subjects := []model.Subject{}
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}
