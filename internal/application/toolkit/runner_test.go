package toolkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-toolkit-api/internal/application/credit"
	"ai-toolkit-api/internal/domain/entity"
	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/internal/infrastructure/persistence/memory"
)

type spyLedger struct {
	mu       sync.Mutex
	checks   int
	debits   int
	ensures  int
	balance  int64
	checkErr error
	debitErr error
	notes    []credit.UsageNote
}

func (s *spyLedger) CheckBalance(_ context.Context, _ string, _ int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	return s.balance, s.checkErr
}

func (s *spyLedger) Debit(_ context.Context, _ string, amount int64, note credit.UsageNote) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debits++
	s.notes = append(s.notes, note)
	if s.debitErr != nil {
		return 0, s.debitErr
	}
	s.balance -= amount
	return s.balance, nil
}

func (s *spyLedger) EnsureAccount(_ context.Context, _ string, _ int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensures++
	return true, nil
}

func (s *spyLedger) Recorded(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

type recordingQueue struct {
	mu      sync.Mutex
	pending []service.PendingDebit
}

func (q *recordingQueue) EnqueueDebit(_ context.Context, debit service.PendingDebit) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, debit)
	return nil
}

func newMemoryLedger(t *testing.T, users map[string]int64) (*credit.Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	ledger := credit.NewLedger(store, store, store)
	for user, balance := range users {
		_, err := ledger.EnsureAccount(context.Background(), user, balance)
		require.NoError(t, err)
	}
	return ledger, store
}

func stubTool(cost int64, compute func(ctx context.Context, req *Request) (any, error)) *Tool {
	return &Tool{
		ID:          "stub",
		DisplayName: "Stub Tool",
		Cost:        cost,
		ResultField: "value",
		Required:    []string{"text"},
		Compute:     compute,
	}
}

func echo(_ context.Context, req *Request) (any, error) {
	return strings.ToUpper(req.Field("text")), nil
}

func TestRunDebitsAfterCompute(t *testing.T) {
	ledger, store := newMemoryLedger(t, map[string]int64{"u1": entity.DefaultInitialBalance})
	runner := NewRunner(ledger, nil, RunnerConfig{})
	catalog := NewCatalog(Deps{}, nil)
	tool, err := catalog.Get(ToolCompetitorAnalysis)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), tool, &Request{
		UserID: "u1",
		Fields: map[string]string{"competitorUrl": "example.com"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.CreditsRemaining)
	assert.Equal(t, int64(42), *res.CreditsRemaining)
	assert.Equal(t, int64(8), res.CreditsUsed)
	assert.NotEmpty(t, res.RequestID)
	assert.IsType(t, &CompetitorAnalysis{}, res.Value)

	acc, err := ledger.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), acc.TotalUsed)
	assert.Equal(t, 1, store.UsageCount("u1"))
}

func TestRunMissingFieldSkipsLedger(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{name: "absent", fields: map[string]string{}},
		{name: "blank", fields: map[string]string{"text": "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyLedger{balance: 50}
			runner := NewRunner(spy, nil, RunnerConfig{})
			called := false
			tool := stubTool(2, func(ctx context.Context, req *Request) (any, error) {
				called = true
				return nil, nil
			})

			_, err := runner.Run(context.Background(), tool, &Request{UserID: "u1", Fields: tt.fields})
			require.ErrorIs(t, err, ErrInvalidInput)
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, "text", inputErr.Field)
			assert.Zero(t, spy.checks)
			assert.Zero(t, spy.debits)
			assert.False(t, called)
		})
	}
}

func TestRunInsufficientCreditsSkipsCompute(t *testing.T) {
	ledger, store := newMemoryLedger(t, map[string]int64{"u1": 1})
	runner := NewRunner(ledger, nil, RunnerConfig{})
	called := false
	tool := stubTool(8, func(ctx context.Context, req *Request) (any, error) {
		called = true
		return "x", nil
	})

	_, err := runner.Run(context.Background(), tool, &Request{UserID: "u1", Fields: map[string]string{"text": "hi"}})
	require.ErrorIs(t, err, credit.ErrInsufficientCredits)
	assert.False(t, called)
	assert.Zero(t, store.UsageCount("u1"))
}

func TestRunAccountNotFound(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		ledger, _ := newMemoryLedger(t, nil)
		runner := NewRunner(ledger, nil, RunnerConfig{})
		_, err := runner.Run(context.Background(), stubTool(2, echo), &Request{UserID: "ghost", Fields: map[string]string{"text": "hi"}})
		require.ErrorIs(t, err, credit.ErrAccountNotFound)
	})

	t.Run("auto provisioned", func(t *testing.T) {
		ledger, _ := newMemoryLedger(t, nil)
		runner := NewRunner(ledger, nil, RunnerConfig{AutoProvision: true, InitialBalance: 50})
		res, err := runner.Run(context.Background(), stubTool(2, echo), &Request{UserID: "new", Fields: map[string]string{"text": "hi"}})
		require.NoError(t, err)
		require.NotNil(t, res.CreditsRemaining)
		assert.Equal(t, int64(48), *res.CreditsRemaining)
		assert.Equal(t, "HI", res.Value)
	})
}

func TestRunComputeErrorDoesNotDebit(t *testing.T) {
	ledger, store := newMemoryLedger(t, map[string]int64{"u1": 50})
	runner := NewRunner(ledger, nil, RunnerConfig{})

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "upstream", err: errors.New("connection reset"), wantErr: ErrUpstream},
		{name: "model loading", err: fmt.Errorf("hf: %w", service.ErrModelLoading), wantErr: ErrModelLoading},
		{name: "input", err: invalidField("text", "too long"), wantErr: ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := stubTool(2, func(ctx context.Context, req *Request) (any, error) {
				return nil, tt.err
			})
			_, err := runner.Run(context.Background(), tool, &Request{UserID: "u1", Fields: map[string]string{"text": "hi"}})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	acc, err := ledger.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), acc.Balance)
	assert.Zero(t, store.UsageCount("u1"))
}

func TestRunWithholdsResultWhenRaceLost(t *testing.T) {
	ledger, store := newMemoryLedger(t, map[string]int64{"u1": 10})
	runner := NewRunner(ledger, nil, RunnerConfig{})

	// 计算期间另一个请求先扣光余额
	tool := stubTool(8, func(ctx context.Context, req *Request) (any, error) {
		_, err := ledger.Debit(ctx, "u1", 8, credit.UsageNote{ToolName: "other", ToolDisplayName: "Other"})
		require.NoError(t, err)
		return "paid output", nil
	})

	res, err := runner.Run(context.Background(), tool, &Request{UserID: "u1", Fields: map[string]string{"text": "hi"}})
	require.ErrorIs(t, err, credit.ErrInsufficientCredits)
	assert.Nil(t, res)
	assert.Equal(t, 1, store.UsageCount("u1"))
}

func TestRunRejectsReusedRequestID(t *testing.T) {
	ledger, store := newMemoryLedger(t, map[string]int64{"u1": 50, "u2": 50})
	runner := NewRunner(ledger, nil, RunnerConfig{})
	computed := 0
	tool := stubTool(8, func(ctx context.Context, req *Request) (any, error) {
		computed++
		return echo(ctx, req)
	})
	run := func(userID string) (*Result, error) {
		return runner.Run(context.Background(), tool, &Request{
			UserID:    userID,
			RequestID: "k",
			Fields:    map[string]string{"text": "hi"},
		})
	}

	res, err := run("u1")
	require.NoError(t, err)
	assert.Equal(t, "HI", res.Value)
	require.NotNil(t, res.CreditsRemaining)
	assert.Equal(t, int64(42), *res.CreditsRemaining)

	for i := 0; i < 4; i++ {
		res, err = run("u1")
		require.ErrorIs(t, err, credit.ErrDuplicateRequest)
		assert.Nil(t, res)
	}
	assert.Equal(t, 1, computed)

	// 同一个键对其他用户照常计费
	res, err = run("u2")
	require.NoError(t, err)
	require.NotNil(t, res.CreditsRemaining)
	assert.Equal(t, int64(42), *res.CreditsRemaining)
	assert.Equal(t, 2, computed)

	for userID, want := range map[string]int64{"u1": 42, "u2": 42} {
		acc, err := ledger.Account(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, want, acc.Balance, userID)
		assert.Equal(t, 1, store.UsageCount(userID), userID)
	}
}

func TestRunWithholdsResultWhenRequestIDRaceLost(t *testing.T) {
	ledger, store := newMemoryLedger(t, map[string]int64{"u1": 50})
	runner := NewRunner(ledger, nil, RunnerConfig{})

	// 计算期间同一幂等键的另一个请求先完成扣费
	tool := stubTool(8, func(ctx context.Context, req *Request) (any, error) {
		_, err := ledger.Debit(ctx, "u1", 8, credit.UsageNote{ToolName: "stub", ToolDisplayName: "Stub Tool", RequestID: "k"})
		require.NoError(t, err)
		return "paid output", nil
	})

	res, err := runner.Run(context.Background(), tool, &Request{UserID: "u1", RequestID: "k", Fields: map[string]string{"text": "hi"}})
	require.ErrorIs(t, err, credit.ErrDuplicateRequest)
	assert.Nil(t, res)
	assert.Equal(t, 1, store.UsageCount("u1"))
}

func TestRunStoreErrorEnqueuesRetry(t *testing.T) {
	spy := &spyLedger{balance: 50, debitErr: fmt.Errorf("%w: connection refused", credit.ErrStore)}
	queue := &recordingQueue{}
	runner := NewRunner(spy, queue, RunnerConfig{})

	res, err := runner.Run(context.Background(), stubTool(3, echo), &Request{
		UserID:    "u1",
		RequestID: "req-1",
		Fields:    map[string]string{"text": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", res.Value)
	assert.True(t, res.DebitPending)
	assert.Nil(t, res.CreditsRemaining)

	require.Len(t, queue.pending, 1)
	p := queue.pending[0]
	assert.Equal(t, "req-1", p.RequestID)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, int64(3), p.Amount)
	assert.Equal(t, "stub", p.ToolName)
	assert.Equal(t, "hello", p.InputPreview)
	assert.Equal(t, "HELLO", p.OutputPreview)
	assert.Contains(t, p.LastError, "connection refused")
}

func TestRunFreeToolSkipsLedger(t *testing.T) {
	spy := &spyLedger{balance: 0}
	runner := NewRunner(spy, nil, RunnerConfig{})
	catalog := NewCatalog(Deps{Now: func() time.Time { return time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC) }}, nil)
	tool, err := catalog.Get(ToolPostScheduler)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), tool, &Request{UserID: "u1", Fields: map[string]string{"topic": "remote work"}})
	require.NoError(t, err)
	assert.Nil(t, res.CreditsRemaining)
	assert.Zero(t, spy.checks)
	assert.Zero(t, spy.debits)

	schedule := res.Value.(*PostSchedule)
	assert.Equal(t, "2024-03-04", schedule.StartDate)
}

func TestRunAnonymous(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		spy := &spyLedger{}
		runner := NewRunner(spy, nil, RunnerConfig{})
		res, err := runner.Run(context.Background(), stubTool(2, echo), &Request{Fields: map[string]string{"text": "hi"}})
		require.NoError(t, err)
		assert.Equal(t, "HI", res.Value)
		assert.Zero(t, spy.checks+spy.debits)
	})

	t.Run("user required", func(t *testing.T) {
		spy := &spyLedger{}
		runner := NewRunner(spy, nil, RunnerConfig{RequireUser: true})
		_, err := runner.Run(context.Background(), stubTool(2, echo), &Request{Fields: map[string]string{"text": "hi"}})
		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr)
		assert.Equal(t, "userId", inputErr.Field)
	})
}

func TestRunComputeTimeout(t *testing.T) {
	spy := &spyLedger{balance: 50}
	runner := NewRunner(spy, nil, RunnerConfig{Timeout: 20 * time.Millisecond})
	tool := stubTool(2, func(ctx context.Context, req *Request) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := runner.Run(context.Background(), tool, &Request{UserID: "u1", Fields: map[string]string{"text": "hi"}})
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, spy.debits)
}

func TestRunTruncatesPreviews(t *testing.T) {
	spy := &spyLedger{balance: 50}
	runner := NewRunner(spy, nil, RunnerConfig{})
	long := strings.Repeat("ş", 500)

	_, err := runner.Run(context.Background(), stubTool(1, echo), &Request{UserID: "u1", Fields: map[string]string{"text": long}})
	require.NoError(t, err)
	require.Len(t, spy.notes, 1)
	assert.Equal(t, entity.MaxPreviewRunes, len([]rune(spy.notes[0].InputPreview)))
	assert.Equal(t, entity.MaxPreviewRunes, len([]rune(spy.notes[0].OutputPreview)))
}

func TestCatalog(t *testing.T) {
	catalog := NewCatalog(Deps{}, map[string]int64{ToolCompetitorAnalysis: 10, "unknown": 99})

	tool, err := catalog.Get(ToolCompetitorAnalysis)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tool.Cost)

	_, err = catalog.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownTool)

	list := catalog.List()
	require.Len(t, list, 9)
	assert.Equal(t, ToolPostScheduler, list[0].ID)
	assert.Equal(t, ToolCompetitorAnalysis, list[len(list)-1].ID)
}

func TestLLMToolRendersPrompt(t *testing.T) {
	var captured []*schema.Message
	gen := service.TextGeneratorFunc(func(ctx context.Context, msgs []*schema.Message) (string, error) {
		captured = msgs
		assert.Equal(t, ToolToneAdjustment, service.ToolFromContext(ctx))
		return "Merhaba!", nil
	})
	catalog := NewCatalog(Deps{Generator: gen}, nil)
	tool, err := catalog.Get(ToolToneAdjustment)
	require.NoError(t, err)

	runner := NewRunner(&spyLedger{balance: 50}, nil, RunnerConfig{})
	res, err := runner.Run(context.Background(), tool, &Request{
		UserID:   "u1",
		Language: "TR",
		Fields:   map[string]string{"text": "hey there", "tone": "formal"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Merhaba!", res.Value)

	require.Len(t, captured, 2)
	assert.Equal(t, schema.System, captured[0].Role)
	assert.Contains(t, captured[0].Content, "Turkish")
	assert.Contains(t, captured[1].Content, "hey there")
	assert.Contains(t, captured[1].Content, "formal")
}

func TestLLMToolOptionalDefaults(t *testing.T) {
	var user string
	gen := service.TextGeneratorFunc(func(_ context.Context, msgs []*schema.Message) (string, error) {
		user = msgs[len(msgs)-1].Content
		return "ok", nil
	})
	tool, err := NewCatalog(Deps{Generator: gen}, nil).Get(ToolPersonaGeneration)
	require.NoError(t, err)

	_, err = tool.Compute(context.Background(), &Request{Fields: map[string]string{"product": "CRM"}})
	require.NoError(t, err)
	assert.Contains(t, user, "CRM")
	assert.Contains(t, user, "general")
}

type stubClassifier []service.SentimentScore

func (s stubClassifier) Classify(context.Context, string) ([]service.SentimentScore, error) {
	return s, nil
}

func TestSentimentToolLocalizesLabel(t *testing.T) {
	classifier := stubClassifier{
		{Label: "negative", Score: 0.1},
		{Label: "positive", Score: 0.85},
		{Label: "neutral", Score: 0.05},
	}
	tool, err := NewCatalog(Deps{Classifier: classifier}, nil).Get(ToolSentimentAnalysis)
	require.NoError(t, err)

	tests := []struct {
		lang string
		want string
	}{
		{lang: LanguageEnglish, want: "Positive"},
		{lang: LanguageTurkish, want: "Olumlu"},
	}
	for _, tt := range tests {
		v, err := tool.Compute(context.Background(), &Request{Language: tt.lang, Fields: map[string]string{"text": "great"}})
		require.NoError(t, err)
		r := v.(*SentimentResult)
		assert.Equal(t, "positive", r.Sentiment)
		assert.Equal(t, tt.want, r.Label)
		assert.InDelta(t, 0.85, r.Score, 1e-9)
	}
}

func TestCanonicalSentiment(t *testing.T) {
	assert.Equal(t, "negative", canonicalSentiment("LABEL_0"))
	assert.Equal(t, "neutral", canonicalSentiment("LABEL_1"))
	assert.Equal(t, "positive", canonicalSentiment("LABEL_2"))
	assert.Equal(t, "positive", canonicalSentiment("POSITIVE"))
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, LanguageTurkish, NormalizeLanguage(" tr "))
	assert.Equal(t, LanguageEnglish, NormalizeLanguage("de"))
	assert.Equal(t, LanguageEnglish, NormalizeLanguage(""))
}
