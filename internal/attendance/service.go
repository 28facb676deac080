package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"schoolattendance/internal/metrics"
	"schoolattendance/internal/queue"
	"schoolattendance/internal/store"
)

// Publisher delivers attendance events; queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// SummaryCache stores computed student summaries.
type SummaryCache interface {
	Get(ctx context.Context, studentID string) (Summary, bool, error)
	Put(ctx context.Context, summary Summary) error
	Invalidate(ctx context.Context, studentID string) error
}

// Service coordinates QR session issuance, redemption and daily attendance.
type Service struct {
	repo   *Repository
	window time.Duration
	loc    *time.Location
	now    func() time.Time
	events Publisher
	cache  SummaryCache
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone that decides the calendar day of daily attendance.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithEvents publishes attendance.marked events after attendance changes.
func WithEvents(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithSummaryCache enables read-through caching of summaries.
func WithSummaryCache(c SummaryCache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService creates a service backed by a repository. window is how long a session accepts redemptions.
func NewService(repo *Repository, window time.Duration, opts ...Option) *Service {
	if window <= 0 {
		window = 3 * time.Minute
	}
	s := &Service{repo: repo, window: window, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the redemption window of new sessions.
func (s *Service) Window() time.Duration { return s.window }

func (s *Service) clock() time.Time {
	// Postgres keeps microseconds; truncating keeps returned values equal to stored ones.
	return s.now().UTC().Truncate(time.Microsecond)
}

// day maps an instant to its calendar date in the school's time zone.
func (s *Service) day(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// IssueSession opens a new window for the teacher, closing any window still open.
func (s *Service) IssueSession(ctx context.Context, teacherID string) (Session, error) {
	if teacherID == "" {
		return Session{}, ErrTeacherRequired
	}
	now := s.clock()
	sess := Session{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		TeacherID: teacherID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.window),
		Active:    true,
	}

	var superseded int64
	err := s.repo.WithTx(ctx, func(tx *Tx) error {
		n, err := tx.DeactivateTeacherSessions(ctx, teacherID, now)
		if err != nil {
			return fmt.Errorf("deactivate sessions: %w", err)
		}
		superseded = n
		return tx.InsertSession(ctx, sess)
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Session{}, ErrIssueConflict
		}
		return Session{}, fmt.Errorf("issue session: %w", err)
	}

	metrics.SessionsIssued.Inc()
	metrics.SessionsSuperseded.Add(float64(superseded))
	return sess, nil
}

// Redeem records the student as present for the session behind token.
// Rejections are reported as ErrInvalidToken, ErrSessionInactive or ErrSessionTimedOut.
func (s *Service) Redeem(ctx context.Context, studentID, token string) (Redemption, error) {
	start := time.Now()
	res, err := s.redeem(ctx, studentID, token)
	metrics.ObserveRedemption(outcomeLabel(res, err), time.Since(start))
	if err == nil && res.Outcome == OutcomeSuccess {
		s.attendanceChanged(ctx, studentID)
	}
	return res, err
}

func (s *Service) redeem(ctx context.Context, studentID, token string) (Redemption, error) {
	if studentID == "" {
		return Redemption{}, ErrStudentRequired
	}
	// Tokens are issued as UUIDs; anything else cannot match a session.
	if _, err := uuid.Parse(token); err != nil {
		return Redemption{}, ErrInvalidToken
	}

	now := s.clock()
	var res Redemption
	var rejected error
	err := s.repo.WithTx(ctx, func(tx *Tx) error {
		sess, err := tx.SessionByToken(ctx, token)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if sess == nil {
			rejected = ErrInvalidToken
			return nil
		}
		res.Session = *sess

		if !sess.Active {
			rejected = ErrSessionInactive
			return nil
		}
		if sess.Expired(now) {
			if err := tx.DeactivateSession(ctx, sess.ID, now); err != nil {
				return fmt.Errorf("expire session: %w", err)
			}
			res.Session.Active = false
			res.Session.DeactivatedAt = &now
			rejected = ErrSessionTimedOut
			return nil
		}

		marked, err := tx.HasRecord(ctx, studentID, sess.ID)
		if err != nil {
			return fmt.Errorf("check record: %w", err)
		}
		if marked {
			res.Outcome = OutcomeAlreadyMarked
			return nil
		}

		rec := Record{
			ID:         uuid.NewString(),
			StudentID:  studentID,
			SessionID:  sess.ID,
			Status:     StatusPresent,
			RedeemedAt: now,
		}
		inserted, err := tx.InsertRecord(ctx, rec)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		if !inserted {
			res.Outcome = OutcomeAlreadyMarked
			return nil
		}
		if err := tx.UpsertDaily(ctx, studentID, s.day(now), StatusPresent, now); err != nil {
			return fmt.Errorf("upsert daily attendance: %w", err)
		}
		res.Outcome = OutcomeSuccess
		res.Record = rec
		return nil
	})
	if err != nil {
		return Redemption{}, fmt.Errorf("redeem: %w", err)
	}
	if rejected != nil {
		if errors.Is(rejected, ErrSessionTimedOut) {
			metrics.SessionsTimedOut.Inc()
		}
		return res, rejected
	}
	return res, nil
}

func outcomeLabel(res Redemption, err error) string {
	switch {
	case err == nil:
		return string(res.Outcome)
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrSessionInactive):
		return "session_inactive"
	case errors.Is(err, ErrSessionTimedOut):
		return "session_timed_out"
	default:
		return "error"
	}
}

// CurrentSession returns the teacher's open window, closing it first if it already expired.
func (s *Service) CurrentSession(ctx context.Context, teacherID string) (CurrentSession, error) {
	if teacherID == "" {
		return CurrentSession{}, ErrTeacherRequired
	}
	now := s.clock()
	var cur *CurrentSession
	var expired bool
	err := s.repo.WithTx(ctx, func(tx *Tx) error {
		sess, err := tx.ActiveSession(ctx, teacherID)
		if err != nil {
			return fmt.Errorf("load active session: %w", err)
		}
		if sess == nil {
			return nil
		}
		if sess.Expired(now) {
			expired = true
			return tx.DeactivateSession(ctx, sess.ID, now)
		}
		count, err := tx.CountRecords(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("count records: %w", err)
		}
		cur = &CurrentSession{Session: *sess, Remaining: sess.ExpiresAt.Sub(now), PresentCount: count}
		return nil
	})
	if err != nil {
		return CurrentSession{}, fmt.Errorf("current session: %w", err)
	}
	if expired {
		metrics.SessionsTimedOut.Inc()
	}
	if cur == nil {
		return CurrentSession{}, ErrNoActiveSession
	}
	return *cur, nil
}

// OwnedSession returns the session behind token if it belongs to the teacher.
func (s *Service) OwnedSession(ctx context.Context, teacherID, token string) (Session, error) {
	if _, err := uuid.Parse(token); err != nil {
		return Session{}, ErrInvalidToken
	}
	sess, err := s.repo.SessionByToken(ctx, token)
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.TeacherID != teacherID {
		return Session{}, ErrInvalidToken
	}
	return *sess, nil
}

// SessionRecords lists who redeemed one of the teacher's sessions.
func (s *Service) SessionRecords(ctx context.Context, teacherID, token string) ([]Record, error) {
	sess, err := s.OwnedSession(ctx, teacherID, token)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListRecords(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}

// MarkDaily applies a teacher's manual statuses for one day in a single transaction.
func (s *Service) MarkDaily(ctx context.Context, teacherID string, day time.Time, entries []DailyEntry) (int, error) {
	if teacherID == "" {
		return 0, ErrTeacherRequired
	}
	for _, e := range entries {
		if e.StudentID == "" || (e.Status != StatusPresent && e.Status != StatusAbsent) {
			return 0, fmt.Errorf("%w: student %q status %q", ErrInvalidEntry, e.StudentID, e.Status)
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	now := s.clock()
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	err := s.repo.WithTx(ctx, func(tx *Tx) error {
		for _, e := range entries {
			if err := tx.UpsertDaily(ctx, e.StudentID, date, e.Status, now); err != nil {
				return fmt.Errorf("upsert daily attendance for %s: %w", e.StudentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark daily: %w", err)
	}
	for _, e := range entries {
		s.attendanceChanged(ctx, e.StudentID)
	}
	return len(entries), nil
}

// Today returns the current calendar day in the school's time zone.
func (s *Service) Today() time.Time {
	return s.day(s.clock())
}

// Summary returns a student's attendance summary, from cache when available.
func (s *Service) Summary(ctx context.Context, studentID string) (Summary, error) {
	if studentID == "" {
		return Summary{}, ErrStudentRequired
	}
	if s.cache != nil {
		sum, ok, err := s.cache.Get(ctx, studentID)
		if err != nil {
			log.Printf("summary cache get %s: %v", studentID, err)
		} else if ok {
			return sum, nil
		}
	}
	return s.RefreshSummary(ctx, studentID)
}

// RefreshSummary recomputes a student's summary and stores it in the cache.
func (s *Service) RefreshSummary(ctx context.Context, studentID string) (Summary, error) {
	history, err := s.repo.DailyHistory(ctx, studentID)
	if err != nil {
		return Summary{}, fmt.Errorf("daily history: %w", err)
	}
	sum := summarize(studentID, history)
	if s.cache != nil {
		if err := s.cache.Put(ctx, sum); err != nil {
			log.Printf("summary cache put %s: %v", studentID, err)
		}
	}
	return sum, nil
}

func summarize(studentID string, history []DailyAttendance) Summary {
	sum := Summary{StudentID: studentID, TotalDays: len(history), History: history}
	if sum.History == nil {
		sum.History = []DailyAttendance{}
	}
	for _, d := range history {
		if d.Status == StatusPresent {
			sum.PresentDays++
		}
	}
	if sum.TotalDays > 0 {
		pct := float64(sum.PresentDays) / float64(sum.TotalDays) * 100
		sum.Percentage = math.Round(pct*100) / 100
	}
	return sum
}

// attendanceChanged drops the cached summary and notifies consumers. Failures are logged only.
func (s *Service) attendanceChanged(ctx context.Context, studentID string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, studentID); err != nil {
			log.Printf("summary cache invalidate %s: %v", studentID, err)
		}
	}
	if s.events != nil {
		msg := queue.Message{Type: EventAttendanceMarked, Body: []byte(studentID)}
		if err := s.events.Publish(ctx, msg); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}
}
