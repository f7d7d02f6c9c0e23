package anamnesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/anamnesis/internal/runtime"
	"github.com/aretw0/anamnesis/pkg/adapters/memory"
	"github.com/aretw0/anamnesis/pkg/completion"
	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/aretw0/anamnesis/pkg/ports"
	"github.com/aretw0/anamnesis/pkg/session"
)

// DefaultHistoryLimit is the number of records History returns when no limit is given.
const DefaultHistoryLimit = 5

// ErrNoExtractor is the extraction error reported when no TextExtractor is configured.
var ErrNoExtractor = errors.New("text recognition is not configured")

// Reply is what a transport sends back for one inbound message.
type Reply struct {
	SessionID string       `json:"session_id"`
	Text      string       `json:"reply"`
	Done      bool         `json:"done"`
	State     domain.State `json:"state"`
}

// Service orchestrates sessions: it serialises steps per session id, applies
// the transition table, calls the generator at checkpoints and persists
// completed sessions.
type Service struct {
	sessions     *session.Manager
	generator    ports.Generator
	records      ports.RecordStore
	extractor    ports.TextExtractor
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	historyLimit int
}

// Option defines a functional option for configuring the Service.
type Option func(*Service)

// WithRecordStore sets where completed sessions are persisted. Defaults to memory.
func WithRecordStore(store ports.RecordStore) Option {
	return func(s *Service) {
		s.records = store
	}
}

// WithTextExtractor enables photo input at the analyses step.
func WithTextExtractor(ex ports.TextExtractor) Option {
	return func(s *Service) {
		s.extractor = ex
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Service) {
		s.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator replaces uuid generation for session and record ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithHistoryLimit overrides DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// New creates a Service over a session manager and a generator.
func New(sessions *session.Manager, generator ports.Generator, opts ...Option) (*Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}

	s := &Service{
		sessions:     sessions,
		generator:    generator,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.records == nil {
		s.records = memory.NewRecordStore()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

// Handle applies one message to a session.
//
// An empty sessionID starts a new session under a generated id. An unknown id
// starts a session under that id; in both cases the message is not consumed and
// the reply is the first question.
//
// A generation failure returns an error wrapping domain.ErrGenerationFailed and
// leaves the session untouched, so the same message can be resubmitted.
// A persistence failure at the end returns the final Reply together with a
// *PersistenceError.
func (s *Service) Handle(ctx context.Context, sessionID, message string) (Reply, error) {
	msg, err := runtime.SanitizeInput(message)
	if err != nil {
		return Reply{}, err
	}
	if sessionID == "" {
		sessionID = s.newID()
	}

	var reply Reply
	err = s.sessions.WithLock(ctx, sessionID, func(ctx context.Context, tx *session.Tx) error {
		sess, created, err := tx.GetOrCreate(ctx)
		if err != nil {
			return err
		}
		if created {
			reply = s.opened(ctx, sessionID)
			return nil
		}

		reply, err = s.step(ctx, tx, sess, msg)
		return err
	})
	return reply, err
}

// HandleImage answers the analyses question with a photo. The recognised text
// is used as the answer; if recognition fails the answer is an inline error
// message and the questionnaire still moves on.
func (s *Service) HandleImage(ctx context.Context, sessionID string, image []byte, mimeType string) (Reply, error) {
	if len(image) == 0 {
		return Reply{}, fmt.Errorf("%w: empty image", domain.ErrMalformedInput)
	}
	if sessionID == "" {
		sessionID = s.newID()
	}

	var reply Reply
	err := s.sessions.WithLock(ctx, sessionID, func(ctx context.Context, tx *session.Tx) error {
		sess, created, err := tx.GetOrCreate(ctx)
		if err != nil {
			return err
		}
		if created {
			reply = s.opened(ctx, sessionID)
			return nil
		}
		if sess.State != domain.StateEnterAnalyses {
			return fmt.Errorf("%w: images are accepted only at %s, session is at %s",
				domain.ErrMalformedInput, domain.StateEnterAnalyses, sess.State)
		}

		text := s.extract(ctx, sessionID, image, mimeType)
		reply, err = s.step(ctx, tx, sess, text)
		if err != nil {
			return err
		}
		reply.Text = "Распознанный текст:\n\n" + text + "\n\n" + reply.Text
		return nil
	})
	return reply, err
}

// Restart discards the session and opens a fresh one under the same id.
func (s *Service) Restart(ctx context.Context, sessionID string) (Reply, error) {
	if sessionID == "" {
		sessionID = s.newID()
	}

	var reply Reply
	err := s.sessions.WithLock(ctx, sessionID, func(ctx context.Context, tx *session.Tx) error {
		if err := tx.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove session: %w", err)
		}
		if _, _, err := tx.GetOrCreate(ctx); err != nil {
			return err
		}
		reply = s.opened(ctx, sessionID)
		return nil
	})
	return reply, err
}

// Resume reprints the question a session is waiting on without consuming any
// input. An absent session is opened as in Handle.
func (s *Service) Resume(ctx context.Context, sessionID string) (Reply, error) {
	if sessionID == "" {
		sessionID = s.newID()
	}

	var reply Reply
	err := s.sessions.WithLock(ctx, sessionID, func(ctx context.Context, tx *session.Tx) error {
		sess, created, err := tx.GetOrCreate(ctx)
		if err != nil {
			return err
		}
		if created {
			reply = s.opened(ctx, sessionID)
			return nil
		}

		reply = Reply{SessionID: sessionID, State: sess.State, Text: runtime.Prompt(sess.State)}
		switch {
		case sess.State == domain.StateWaitFollowUp:
			reply.Text = completion.ComposeInterim(ports.Interim{
				Reply:    sess.Data[domain.FieldInterimReply],
				FollowUp: sess.Data[domain.FieldFollowUp],
			})
		case reply.Text == "":
			s.logger.Warn("Unrecognised session state, restarting questionnaire",
				"session_id", sessionID,
				"state", sess.State,
			)
			start := runtime.Start()
			if err := tx.Update(ctx, start.Next, start.Data); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			reply = s.opened(ctx, sessionID)
		}
		return nil
	})
	return reply, err
}

// History returns the user's completed sessions, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrMalformedInput)
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.records.ListByUser(ctx, userID, limit)
}

// Sessions exposes the session manager for administration.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

func (s *Service) opened(ctx context.Context, sessionID string) Reply {
	start := runtime.Start()
	s.logger.Debug("Session started", "session_id", sessionID)
	if s.hooks.OnSessionStart != nil {
		s.hooks.OnSessionStart(ctx, &domain.EventBase{
			Timestamp: s.now(),
			Type:      domain.EventSessionStart,
			SessionID: sessionID,
		})
	}
	return Reply{SessionID: sessionID, Text: start.Prompt, State: start.Next}
}

// step runs one transition inside the session's lock.
func (s *Service) step(ctx context.Context, tx *session.Tx, sess *domain.Session, msg string) (Reply, error) {
	st := runtime.Transition(sess.State, msg, sess.Data)
	if st.Anomalous {
		s.logger.Warn("Unrecognised session state, restarting questionnaire",
			"session_id", sess.ID,
			"state", sess.State,
		)
	}

	reply := Reply{SessionID: sess.ID, State: st.Next}

	switch st.Checkpoint {
	case domain.CheckpointInterim:
		interim, err := s.generateInterim(ctx, sess.ID, st.Data)
		if err != nil {
			return Reply{}, err
		}
		st.Data[domain.FieldInterimReply] = interim.Reply
		if interim.FollowUp != "" {
			st.Data[domain.FieldFollowUp] = interim.FollowUp
		}
		if err := tx.Update(ctx, st.Next, st.Data); err != nil {
			return Reply{}, fmt.Errorf("failed to save session: %w", err)
		}
		reply.Text = completion.ComposeInterim(interim)

	case domain.CheckpointFinal:
		final, err := s.generateFinal(ctx, sess.ID, st.Data)
		if err != nil {
			return Reply{}, err
		}
		st.Data[domain.FieldFinalReply] = final
		reply.Text = final
		reply.Done = true

		completed := sess.Snapshot()
		completed.State = st.Next
		completed.Data = st.Data
		completed.UpdatedAt = s.now()

		s.emitStep(ctx, sess, st)
		return reply, s.complete(ctx, tx, completed)

	default:
		if err := tx.Update(ctx, st.Next, st.Data); err != nil {
			return Reply{}, fmt.Errorf("failed to save session: %w", err)
		}
		reply.Text = st.Prompt
	}

	s.emitStep(ctx, sess, st)
	return reply, nil
}

// complete persists the record and removes the session. The final narrative has
// already been produced, so neither step is allowed to be cut short by the caller.
func (s *Service) complete(ctx context.Context, tx *session.Tx, sess *domain.Session) error {
	ctx = context.WithoutCancel(ctx)

	rec, persistErr := s.persist(ctx, sess)
	if err := tx.Remove(ctx); err != nil {
		s.logger.Error("Failed to remove completed session", "session_id", sess.ID, "err", err)
	}

	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(ctx, &domain.CompleteEvent{
			EventBase: domain.EventBase{Timestamp: s.now(), Type: domain.EventComplete, SessionID: sess.ID},
			RecordID:  rec.ID,
			Persisted: persistErr == nil,
		})
	}
	if persistErr != nil {
		s.logger.Error("Failed to persist session record", "session_id", sess.ID, "err", persistErr)
		return persistErr
	}
	s.logger.Info("Session completed", "session_id", sess.ID, "record_id", rec.ID)
	return nil
}

func (s *Service) persist(ctx context.Context, sess *domain.Session) (domain.Record, error) {
	rec, err := domain.RecordFromSession(s.newID(), UserIDFromContext(ctx), sess)
	if err != nil {
		return domain.Record{}, &PersistenceError{SessionID: sess.ID, Err: err}
	}
	rec.CreatedAt = s.now()

	if err := s.records.Save(ctx, rec); err != nil {
		return rec, &PersistenceError{SessionID: sess.ID, RecordID: rec.ID, Err: err}
	}
	return rec, nil
}

func (s *Service) generateInterim(ctx context.Context, sessionID string, data map[string]string) (ports.Interim, error) {
	start := time.Now()
	interim, err := s.generator.GenerateInterim(ctx, data)
	s.emitCheckpoint(ctx, sessionID, domain.CheckpointInterim, time.Since(start), err)
	if err != nil {
		return ports.Interim{}, generationError(err)
	}
	return interim, nil
}

func (s *Service) generateFinal(ctx context.Context, sessionID string, data map[string]string) (string, error) {
	start := time.Now()
	final, err := s.generator.GenerateFinal(ctx, data)
	s.emitCheckpoint(ctx, sessionID, domain.CheckpointFinal, time.Since(start), err)
	if err != nil {
		return "", generationError(err)
	}
	return final, nil
}

// generationError makes sure every generator failure is classified as such,
// whichever Generator implementation produced it.
func generationError(err error) error {
	if errors.Is(err, domain.ErrGenerationFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
}

func (s *Service) extract(ctx context.Context, sessionID string, image []byte, mimeType string) string {
	var (
		text string
		err  error
	)
	if s.extractor == nil {
		err = ErrNoExtractor
	} else {
		text, err = s.extractor.ExtractText(ctx, image, mimeType)
	}
	if err == nil {
		text, err = runtime.SanitizeInput(text)
	}
	if err != nil {
		s.logger.Warn("Text extraction failed, storing error text", "session_id", sessionID, "err", err)
		return fmt.Sprintf("❌ Не удалось распознать текст с фото. Ошибка: %v", err)
	}
	return text
}

func (s *Service) emitStep(ctx context.Context, sess *domain.Session, st runtime.Step) {
	s.logger.Debug("Step applied",
		"session_id", sess.ID,
		"from", sess.State,
		"to", st.Next,
	)
	if s.hooks.OnStep != nil {
		s.hooks.OnStep(ctx, &domain.StepEvent{
			EventBase: domain.EventBase{Timestamp: s.now(), Type: domain.EventStep, SessionID: sess.ID},
			From:      sess.State,
			To:        st.Next,
			Anomalous: st.Anomalous,
		})
	}
}

func (s *Service) emitCheckpoint(ctx context.Context, sessionID string, cp domain.Checkpoint, d time.Duration, err error) {
	if s.hooks.OnCheckpoint != nil {
		s.hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
			EventBase:  domain.EventBase{Timestamp: s.now(), Type: domain.EventCheckpoint, SessionID: sessionID},
			Checkpoint: cp,
			Duration:   d,
			Err:        err,
		})
	}
}
