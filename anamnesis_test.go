package anamnesis_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/anamnesis"
	"github.com/aretw0/anamnesis/internal/runtime"
	"github.com/aretw0/anamnesis/pkg/adapters/memory"
	"github.com/aretw0/anamnesis/pkg/completion"
	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/aretw0/anamnesis/pkg/session"
)

// scriptedBackend answers interim prompts with Interim and final prompts with Final.
// While failures > 0 every call fails and decrements it.
type scriptedBackend struct {
	Interim  string
	Final    string
	failures atomic.Int32
	calls    atomic.Int32
}

func (b *scriptedBackend) Complete(ctx context.Context, req completion.Request) (string, error) {
	b.calls.Add(1)
	if b.failures.Load() > 0 {
		b.failures.Add(-1)
		return "", errors.New("503 service unavailable")
	}
	if strings.Contains(req.User, "Пользователь рассказал о своём состоянии") {
		return b.Interim, nil
	}
	return b.Final, nil
}

type harness struct {
	svc     *anamnesis.Service
	store   *memory.Store
	records *memory.RecordStore
	backend *scriptedBackend
}

func newHarness(t *testing.T, opts ...anamnesis.Option) *harness {
	t.Helper()
	h := &harness{
		store:   memory.NewStore(),
		records: memory.NewRecordStore(),
		backend: &scriptedBackend{Interim: "TEXT\n---\nShort question?", Final: "FINAL TEXT"},
	}
	base := []anamnesis.Option{anamnesis.WithRecordStore(h.records)}
	svc, err := anamnesis.New(session.NewManager(h.store), completion.New(h.backend), append(base, opts...)...)
	require.NoError(t, err)
	h.svc = svc
	return h
}

// answers in questionnaire order, keyed by the state that consumes them.
var answers = []struct {
	state domain.State
	text  string
}{
	{domain.StateEnterDiagnosis, "Гастрит"},
	{domain.StateEnterAnalyses, "нет"},
	{domain.StateEnterSymptoms, "изжога"},
	{domain.StateEnterOnset, "месяц назад"},
	{domain.StateEnterContext, "переезд"},
	{domain.StateEnterPsycho, "тревожным"},
	{domain.StateEnterLifeEvents, "смена работы"},
	{domain.StateWaitFollowUp, "по утрам"},
	{domain.StateDeepQ1, "новая должность"},
	{domain.StateDeepQ2, "совещания"},
	{domain.StateDeepQ3, "камень"},
	{domain.StateDeepQ4, "на прошлой неделе"},
}

// driveTo opens session id and answers until the session sits at target.
func (h *harness) driveTo(t *testing.T, id string, target domain.State) {
	t.Helper()
	ctx := context.Background()

	reply, err := h.svc.Handle(ctx, id, "")
	require.NoError(t, err)
	require.Equal(t, domain.InitialState, reply.State)

	for _, a := range answers {
		if a.state == target {
			return
		}
		_, err := h.svc.Handle(ctx, id, a.text)
		require.NoError(t, err, "answering %s", a.state)
	}
	require.Equal(t, domain.StateDone, target, "target state not reached")
}

func TestHandle_NewSessionReturnsFirstQuestion(t *testing.T) {
	h := newHarness(t, anamnesis.WithIDGenerator(func() string { return "generated" }))

	reply, err := h.svc.Handle(context.Background(), "", "message is not consumed")
	require.NoError(t, err)
	assert.Equal(t, "generated", reply.SessionID)
	assert.Equal(t, runtime.Prompt(domain.StateEnterDiagnosis), reply.Text)
	assert.Equal(t, domain.StateEnterDiagnosis, reply.State)
	assert.False(t, reply.Done)

	s, err := h.store.Load(context.Background(), "generated")
	require.NoError(t, err)
	assert.Empty(t, s.Data)
}

func TestHandle_Scenario1_Diagnosis(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Handle(ctx, "s1", "")
	require.NoError(t, err)

	reply, err := h.svc.Handle(ctx, "s1", "нет")
	require.NoError(t, err)
	assert.Equal(t, runtime.Prompt(domain.StateEnterAnalyses), reply.Text)
	assert.Equal(t, domain.StateEnterAnalyses, reply.State)

	s, err := h.store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "нет", s.Data[domain.FieldDiagnosis])
}

func TestHandle_Scenario2_InterimCheckpoint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.driveTo(t, "s2", domain.StateEnterLifeEvents)

	reply, err := h.svc.Handle(ctx, "s2", "смена работы")
	require.NoError(t, err)
	assert.Equal(t, "TEXT\n---\nShort question?", reply.Text)
	assert.Equal(t, domain.StateWaitFollowUp, reply.State)
	assert.False(t, reply.Done)

	s, err := h.store.Load(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaitFollowUp, s.State)
	assert.Equal(t, "TEXT", s.Data[domain.FieldInterimReply])
	assert.Equal(t, "Short question?", s.Data[domain.FieldFollowUp])
	assert.Equal(t, "смена работы", s.Data[domain.FieldLifeEvents])
}

func TestHandle_InterimWithoutFollowUp(t *testing.T) {
	h := newHarness(t)
	h.backend.Interim = "Только разбор"
	h.driveTo(t, "s", domain.StateEnterLifeEvents)

	reply, err := h.svc.Handle(context.Background(), "s", "ничего")
	require.NoError(t, err)
	assert.Equal(t, "Только разбор", reply.Text)

	s, err := h.store.Load(context.Background(), "s")
	require.NoError(t, err)
	_, hasFollowUp := s.Data[domain.FieldFollowUp]
	assert.False(t, hasFollowUp)
}

func TestHandle_Scenario3_FinalCheckpointPersists(t *testing.T) {
	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, anamnesis.WithClock(func() time.Time { return created }))
	ctx := anamnesis.WithUserID(context.Background(), "tg-42")
	h.driveTo(t, "s3", domain.StateDeepQ4)

	reply, err := h.svc.Handle(ctx, "s3", "на прошлой неделе")
	require.NoError(t, err)
	assert.True(t, reply.Done)
	assert.Equal(t, domain.StateDone, reply.State)
	assert.Equal(t, "FINAL TEXT", reply.Text)

	_, err = h.store.Load(ctx, "s3")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "completed sessions are removed")

	records := h.records.All()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "tg-42", rec.UserID)
	assert.Equal(t, "s3", rec.SessionID)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, "FINAL TEXT", rec.Final)

	a := rec.Answers
	assert.Equal(t, "гастрит", a.Diagnosis)
	assert.Equal(t, "нет", a.Analyses)
	assert.Equal(t, "изжога", a.Symptoms)
	assert.Equal(t, "месяц назад", a.Onset)
	assert.Equal(t, "переезд", a.Context)
	assert.Equal(t, "тревожным", a.PsychoState)
	assert.Equal(t, "смена работы", a.LifeEvents)
	assert.Equal(t, "по утрам", a.FollowUpAnswer)
	assert.Equal(t, "новая должность", a.DeepQ1)
	assert.Equal(t, "совещания", a.DeepQ2)
	assert.Equal(t, "камень", a.DeepQ3)
	assert.Equal(t, "на прошлой неделе", a.DeepQ4)
	assert.Equal(t, "TEXT", a.InterimReply)
	assert.Equal(t, "Short question?", a.FollowUp)
}

func TestHandle_AfterDoneStartsFresh(t *testing.T) {
	h := newHarness(t)
	h.driveTo(t, "again", domain.StateDone)

	reply, err := h.svc.Handle(context.Background(), "again", "ещё раз")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterDiagnosis, reply.State)
	assert.Equal(t, runtime.Prompt(domain.StateEnterDiagnosis), reply.Text)
}

func TestHandle_Scenario4_GenerationFailureIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.driveTo(t, "s4", domain.StateEnterLifeEvents)

	before, err := h.store.Load(ctx, "s4")
	require.NoError(t, err)

	h.backend.failures.Store(3)
	callsBefore := h.backend.calls.Load()

	_, err = h.svc.Handle(ctx, "s4", "смена работы")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	var retryErr *completion.RetryError
	assert.ErrorAs(t, err, &retryErr)
	assert.Equal(t, int32(3), h.backend.calls.Load()-callsBefore)

	after, err := h.store.Load(ctx, "s4")
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed checkpoint leaves the session untouched")

	reply, err := h.svc.Handle(ctx, "s4", "смена работы")
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaitFollowUp, reply.State)
	assert.Equal(t, "TEXT\n---\nShort question?", reply.Text)
}

func TestHandle_FinalGenerationFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.driveTo(t, "f", domain.StateDeepQ4)
	h.backend.failures.Store(3)

	_, err := h.svc.Handle(ctx, "f", "ответ")
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)

	s, err := h.store.Load(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeepQ4, s.State)
	assert.Empty(t, h.records.All())
}

type failingRecordStore struct {
	saves atomic.Int32
}

func (f *failingRecordStore) Save(ctx context.Context, record domain.Record) error {
	f.saves.Add(1)
	return errors.New("connection refused")
}

func (f *failingRecordStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Record, error) {
	return nil, nil
}

func TestHandle_PersistenceFailureStillReplies(t *testing.T) {
	records := &failingRecordStore{}
	h := newHarness(t, anamnesis.WithRecordStore(records))
	ctx := context.Background()
	h.driveTo(t, "p", domain.StateDeepQ4)
	callsBefore := h.backend.calls.Load()

	reply, err := h.svc.Handle(ctx, "p", "ответ")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistenceFailed)
	assert.NotErrorIs(t, err, domain.ErrGenerationFailed)

	var perr *anamnesis.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "p", perr.SessionID)

	assert.True(t, reply.Done)
	assert.Equal(t, "FINAL TEXT", reply.Text)
	assert.Equal(t, int32(1), h.backend.calls.Load()-callsBefore, "generation ran once")
	assert.Equal(t, int32(1), records.saves.Load())

	_, err = h.store.Load(ctx, "p")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestHandle_SessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Handle(ctx, "a", "")
	require.NoError(t, err)
	_, err = h.svc.Handle(ctx, "b", "")
	require.NoError(t, err)

	_, err = h.svc.Handle(ctx, "a", "астма")
	require.NoError(t, err)
	_, err = h.svc.Handle(ctx, "b", "нет")
	require.NoError(t, err)
	_, err = h.svc.Handle(ctx, "a", "спирометрия")
	require.NoError(t, err)

	a, err := h.store.Load(ctx, "a")
	require.NoError(t, err)
	b, err := h.store.Load(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, "астма", a.Data[domain.FieldDiagnosis])
	assert.Equal(t, "спирометрия", a.Data[domain.FieldAnalyses])
	assert.Equal(t, domain.StateEnterSymptoms, a.State)

	assert.Equal(t, "нет", b.Data[domain.FieldDiagnosis])
	assert.NotContains(t, b.Data, domain.FieldAnalyses)
	assert.Equal(t, domain.StateEnterAnalyses, b.State)
}

func TestHandle_ConcurrentSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("c-%d", i)
			_, err := h.svc.Handle(ctx, id, "")
			assert.NoError(t, err)
			_, err = h.svc.Handle(ctx, id, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("c-%d", i)
		s, err := h.store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, s.Data[domain.FieldDiagnosis])
	}
}

func TestHandle_MalformedInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Handle(context.Background(), "m", "bad \xff utf8")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	_, err = h.store.Load(context.Background(), "m")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "rejected input creates nothing")
}

func TestHandle_AnomalousStateResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	corrupt := domain.NewSession("x", time.Now())
	corrupt.State = domain.StateUnknown
	corrupt.Data["junk"] = "1"
	require.NoError(t, h.store.Save(ctx, corrupt))

	reply, err := h.svc.Handle(ctx, "x", "что угодно")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterDiagnosis, reply.State)

	s, err := h.store.Load(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, s.Data)
}

type stubExtractor struct {
	text string
	err  error
	mime string
}

func (e *stubExtractor) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	e.mime = mimeType
	return e.text, e.err
}

func TestHandleImage_UsesRecognisedText(t *testing.T) {
	ex := &stubExtractor{text: "Гемоглобин 130"}
	h := newHarness(t, anamnesis.WithTextExtractor(ex))
	ctx := context.Background()
	h.driveTo(t, "img", domain.StateEnterAnalyses)

	reply, err := h.svc.HandleImage(ctx, "img", []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ex.mime)
	assert.Equal(t, domain.StateEnterSymptoms, reply.State)
	assert.True(t, strings.HasPrefix(reply.Text, "Распознанный текст:\n\nГемоглобин 130\n\n"))
	assert.True(t, strings.HasSuffix(reply.Text, runtime.Prompt(domain.StateEnterSymptoms)))

	s, err := h.store.Load(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, "Гемоглобин 130", s.Data[domain.FieldAnalyses])
}

func TestHandleImage_ExtractionFailureDegrades(t *testing.T) {
	ex := &stubExtractor{err: errors.New("blurry")}
	h := newHarness(t, anamnesis.WithTextExtractor(ex))
	ctx := context.Background()
	h.driveTo(t, "img", domain.StateEnterAnalyses)

	reply, err := h.svc.HandleImage(ctx, "img", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterSymptoms, reply.State)

	s, err := h.store.Load(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, "❌ Не удалось распознать текст с фото. Ошибка: blurry", s.Data[domain.FieldAnalyses])
}

func TestHandleImage_WithoutExtractorDegrades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.driveTo(t, "img", domain.StateEnterAnalyses)

	_, err := h.svc.HandleImage(ctx, "img", []byte("jpeg"), "")
	require.NoError(t, err)

	s, err := h.store.Load(ctx, "img")
	require.NoError(t, err)
	assert.Contains(t, s.Data[domain.FieldAnalyses], anamnesis.ErrNoExtractor.Error())
}

func TestHandleImage_WrongState(t *testing.T) {
	h := newHarness(t, anamnesis.WithTextExtractor(&stubExtractor{text: "x"}))
	ctx := context.Background()
	h.driveTo(t, "img", domain.StateEnterSymptoms)

	_, err := h.svc.HandleImage(ctx, "img", []byte("jpeg"), "")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	_, err = h.svc.HandleImage(ctx, "img", nil, "")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.driveTo(t, "r", domain.StateEnterOnset)

	reply, err := h.svc.Restart(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "r", reply.SessionID)
	assert.Equal(t, domain.StateEnterDiagnosis, reply.State)
	assert.Equal(t, runtime.Prompt(domain.StateEnterDiagnosis), reply.Text)

	s, err := h.store.Load(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterDiagnosis, s.State)
	assert.Empty(t, s.Data)
}

func TestResume_DoesNotConsumeInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.driveTo(t, "r", domain.StateEnterSymptoms)

	before, err := h.store.Load(ctx, "r")
	require.NoError(t, err)

	reply, err := h.svc.Resume(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "r", reply.SessionID)
	assert.Equal(t, domain.StateEnterSymptoms, reply.State)
	assert.Equal(t, runtime.Prompt(domain.StateEnterSymptoms), reply.Text)

	after, err := h.store.Load(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterSymptoms, after.State)
	assert.Equal(t, before.Data, after.Data)
	assert.NotContains(t, after.Data, domain.FieldSymptoms)
}

func TestResume_AtLifeEventsSkipsCheckpoint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.driveTo(t, "r", domain.StateEnterLifeEvents)
	calls := h.backend.calls.Load()

	reply, err := h.svc.Resume(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterLifeEvents, reply.State)
	assert.Equal(t, calls, h.backend.calls.Load(), "resuming never generates")
}

func TestResume_WaitFollowUpRepeatsInterim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.driveTo(t, "r", domain.StateWaitFollowUp)

	reply, err := h.svc.Resume(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaitFollowUp, reply.State)
	assert.Equal(t, "TEXT\n---\nShort question?", reply.Text)
}

func TestResume_AbsentSessionOpens(t *testing.T) {
	h := newHarness(t, anamnesis.WithIDGenerator(func() string { return "generated" }))
	ctx := context.Background()

	reply, err := h.svc.Resume(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "generated", reply.SessionID)
	assert.Equal(t, domain.StateEnterDiagnosis, reply.State)
	assert.Equal(t, runtime.Prompt(domain.StateEnterDiagnosis), reply.Text)

	_, err = h.store.Load(ctx, "generated")
	require.NoError(t, err)
}

func TestResume_AnomalousStateResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	corrupt := domain.NewSession("x", time.Now())
	corrupt.State = domain.StateUnknown
	corrupt.Data["junk"] = "1"
	require.NoError(t, h.store.Save(ctx, corrupt))

	reply, err := h.svc.Resume(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterDiagnosis, reply.State)
	assert.Equal(t, runtime.Prompt(domain.StateEnterDiagnosis), reply.Text)

	s, err := h.store.Load(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterDiagnosis, s.State)
	assert.Empty(t, s.Data)
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	ctx := anamnesis.WithUserID(context.Background(), "user-7")

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("h-%d", i)
		h.driveTo(t, id, domain.StateDeepQ4)
		_, err := h.svc.Handle(ctx, id, "ответ")
		require.NoError(t, err)
	}

	records, err := h.svc.History(ctx, "user-7", 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = h.svc.History(ctx, "user-7", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = h.svc.History(ctx, "", 0)
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestLifecycleHooks(t *testing.T) {
	var (
		mu          sync.Mutex
		starts      int
		steps       []domain.State
		checkpoints []domain.Checkpoint
		completed   []*domain.CompleteEvent
	)
	hooks := domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.EventBase) {
			mu.Lock()
			defer mu.Unlock()
			starts++
		},
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			mu.Lock()
			defer mu.Unlock()
			steps = append(steps, e.To)
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			mu.Lock()
			defer mu.Unlock()
			checkpoints = append(checkpoints, e.Checkpoint)
		},
		OnComplete: func(ctx context.Context, e *domain.CompleteEvent) {
			mu.Lock()
			defer mu.Unlock()
			completed = append(completed, e)
		},
	}

	h := newHarness(t, anamnesis.WithLifecycleHooks(hooks))
	h.driveTo(t, "hooks", domain.StateDone)

	assert.Equal(t, 1, starts)
	assert.Len(t, steps, len(answers))
	assert.Equal(t, domain.StateDone, steps[len(steps)-1])
	assert.Equal(t, []domain.Checkpoint{domain.CheckpointInterim, domain.CheckpointFinal}, checkpoints)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].Persisted)
	assert.NotEmpty(t, completed[0].RecordID)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := anamnesis.New(nil, completion.New(&scriptedBackend{}))
	assert.Error(t, err)

	_, err = anamnesis.New(session.NewManager(memory.NewStore()), nil)
	assert.Error(t, err)
}
