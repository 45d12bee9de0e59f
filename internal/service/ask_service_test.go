package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baria-go/internal/model"
	"baria-go/internal/screening"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/tasks"
)

type askFixture struct {
	emb    *fakeEmbedder
	llm    *fakeLLM
	conv   *memConversations
	flags  *memRedFlags
	alerts *fakePublisher
	svc    AskService
}

func newAskFixture(t *testing.T, leaflets ...model.IndexChunk) *askFixture {
	t.Helper()
	f := &askFixture{
		emb:    newFakeEmbedder(),
		llm:    &fakeLLM{answer: "  Пейте по 1,5 литра в день.  "},
		conv:   newMemConversations(),
		flags:  &memRedFlags{},
		alerts: &fakePublisher{},
	}
	retrieval := newTestRetrieval(f.emb)
	if len(leaflets) > 0 {
		_, err := retrieval.Index(context.Background(), leaflets)
		require.NoError(t, err)
	}
	f.svc = NewAskService(AskDeps{
		Screener:      screening.New(screening.MustDefaultRules()),
		Retrieval:     retrieval,
		LLM:           f.llm,
		Conversations: f.conv,
		RedFlags:      f.flags,
		Alerts:        f.alerts,
	}, AskOptions{SystemPrompt: "Отвечай по методичкам."})
	return f
}

var waterLeaflets = []model.IndexChunk{
	{Source: "fluids.pdf", Content: "Пейте воду маленькими глотками между приёмами пищи."},
	{Source: "fluids.pdf", Content: "Норма жидкости после операции около 1,5 литра в сутки."},
	{Source: "diet.pdf", Content: "Белок в каждом приёме пищи."},
}

func TestAskCriticalSkipsRetrievalAndLLM(t *testing.T) {
	f := newAskFixture(t, waterLeaflets...)
	embedCalls := f.emb.calls

	res, err := f.svc.Ask(context.Background(), "42", "У меня сильная боль в животе и рвота с кровью")
	require.NoError(t, err)

	assert.True(t, res.Critical)
	assert.Equal(t, 10, res.Severity)
	assert.False(t, res.Fallback)
	assert.Equal(t, screening.FormatWarning(res.Flags), res.Answer)
	assert.Contains(t, res.Answer, "103")
	assert.Zero(t, f.llm.callCount())
	assert.Equal(t, embedCalls, f.emb.calls, "retrieval must not run for emergencies")

	require.Len(t, f.flags.entries, 1)
	assert.Equal(t, "42", f.flags.entries[0].UserID)
	assert.Equal(t, 10, f.flags.entries[0].MaxSeverity)
	assert.Contains(t, f.flags.entries[0].Categories, "severe_pain")

	assert.Eventually(t, func() bool { return len(f.alerts.messages()) == 1 }, time.Second, 10*time.Millisecond)
	msg := f.alerts.messages()[0]
	assert.Equal(t, "42", msg.key)
	alert, ok := msg.value.(tasks.RedFlagAlert)
	require.True(t, ok)
	assert.Equal(t, 10, alert.MaxSeverity)

	st, err := f.conv.GetState(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, model.StateEmergencyDetected, st.State)
	assert.Equal(t, 10, st.LastSeverity)
}

func TestAskAnswersFromLeaflets(t *testing.T) {
	f := newAskFixture(t, waterLeaflets...)

	res, err := f.svc.Ask(context.Background(), "7", "Сколько воды пить после операции?")
	require.NoError(t, err)

	assert.False(t, res.Critical)
	assert.False(t, res.Fallback)
	assert.Equal(t, "Пейте по 1,5 литра в день.", res.Answer)
	assert.NotEmpty(t, res.Sources)
	assert.Len(t, res.Sources, len(distinctSourcesOf(res.Sources)))

	require.Equal(t, 1, f.llm.callCount())
	msgs := f.llm.messages[0]
	assert.Equal(t, "system", msgs[0].Role)
	user := msgs[len(msgs)-1]
	assert.Equal(t, "user", user.Role)
	assert.Contains(t, user.Content, "Вопрос: Сколько воды пить после операции?")
	assert.Contains(t, user.Content, "Извлечённые выдержки из методичек:\n")
	require.NotNil(t, f.llm.gens[0].Temperature)
	assert.Equal(t, 0.2, *f.llm.gens[0].Temperature)

	assert.Equal(t, []string{model.StateAwaitingAnswer, model.StateIdle}, f.conv.trail)
	history, err := f.conv.GetHistory(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "assistant", history[1].Role)

	// the next question carries the history
	_, err = f.svc.Ask(context.Background(), "7", "А сок можно?")
	require.NoError(t, err)
	require.Equal(t, 2, f.llm.callCount())
	assert.Len(t, f.llm.messages[1], 4)
}

func distinctSourcesOf(sources []string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range sources {
		out[s] = true
	}
	return out
}

func TestAskFallbacks(t *testing.T) {
	t.Run("empty index", func(t *testing.T) {
		f := newAskFixture(t)
		res, err := f.svc.Ask(context.Background(), "1", "Можно ли кофе?")
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.Equal(t, AnswerNoData, res.Answer)
		assert.Zero(t, f.llm.callCount())
	})
	t.Run("search failure", func(t *testing.T) {
		f := newAskFixture(t, waterLeaflets...)
		f.emb.err = apperrors.ErrDependencyUnavailable
		res, err := f.svc.Ask(context.Background(), "1", "Можно ли кофе?")
		require.NoError(t, err)
		assert.Equal(t, AnswerUnavailable, res.Answer)
		assert.Zero(t, f.llm.callCount())
	})
	t.Run("llm failure", func(t *testing.T) {
		f := newAskFixture(t, waterLeaflets...)
		f.llm.err = errors.New("connection reset")
		res, err := f.svc.Ask(context.Background(), "1", "Можно ли кофе?")
		require.NoError(t, err)
		assert.Equal(t, AnswerUnavailable, res.Answer)
		assert.Empty(t, res.Sources)
	})
	t.Run("empty llm answer", func(t *testing.T) {
		f := newAskFixture(t, waterLeaflets...)
		f.llm.answer = "   "
		res, err := f.svc.Ask(context.Background(), "1", "Можно ли кофе?")
		require.NoError(t, err)
		assert.Equal(t, AnswerNoData, res.Answer)
		st, err := f.conv.GetState(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, model.StateIdle, st.State)
	})
}

func TestAskAttentionFlagsAreNotes(t *testing.T) {
	f := newAskFixture(t, waterLeaflets...)
	res, err := f.svc.Ask(context.Background(), "3", "Кажется, у меня обезвоживание, что пить?")
	require.NoError(t, err)
	assert.False(t, res.Critical)
	assert.Equal(t, 7, res.Severity)
	require.Len(t, res.Notes, 1)
	assert.Equal(t, 1, f.llm.callCount())
	assert.Empty(t, f.flags.entries)
}

func TestAskValidation(t *testing.T) {
	f := newAskFixture(t)
	_, err := f.svc.Ask(context.Background(), "1", "   ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.svc.Ask(context.Background(), "", "вопрос")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, f.emb.calls)
}

func TestAskWarnsWithoutUserID(t *testing.T) {
	f := newAskFixture(t, waterLeaflets...)
	embedCalls := f.emb.calls

	res, err := f.svc.Ask(context.Background(), "  ", "рвота с кровью")
	require.NoError(t, err)
	assert.True(t, res.Critical)
	assert.Equal(t, screening.FormatWarning(res.Flags), res.Answer)
	assert.Equal(t, embedCalls, f.emb.calls)
	assert.Zero(t, f.llm.callCount())
	require.Len(t, f.flags.entries, 1)
	assert.Empty(t, f.conv.trail)

	w := &recordingWriter{}
	res, err = f.svc.StreamAnswer(context.Background(), "", "черный стул", w)
	require.NoError(t, err)
	assert.True(t, res.Critical)
	assert.Equal(t, []string{res.Answer}, w.parts)
}

func TestAskSurvivesConversationStoreFailure(t *testing.T) {
	f := newAskFixture(t, waterLeaflets...)
	f.conv.err = errors.New("redis down")
	res, err := f.svc.Ask(context.Background(), "1", "Сколько воды пить?")
	require.NoError(t, err)
	assert.False(t, res.Fallback)
}

type recordingWriter struct {
	mu    sync.Mutex
	parts []string
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.parts = append(w.parts, string(data))
	return nil
}

func TestStreamAnswer(t *testing.T) {
	f := newAskFixture(t, waterLeaflets...)
	f.llm.answer = "Пейте воду часто"
	w := &recordingWriter{}

	res, err := f.svc.StreamAnswer(context.Background(), "9", "Сколько воды пить?", w)
	require.NoError(t, err)
	assert.Equal(t, "Пейте воду часто", res.Answer)
	assert.Greater(t, len(w.parts), 1)
	assert.Equal(t, res.Answer, strings.Join(w.parts, ""))

	w = &recordingWriter{}
	res, err = f.svc.StreamAnswer(context.Background(), "9", "У меня черный стул", w)
	require.NoError(t, err)
	assert.True(t, res.Critical)
	assert.Equal(t, []string{res.Answer}, w.parts)
}

func TestStreamAnswerLLMFailure(t *testing.T) {
	t.Run("before any delta", func(t *testing.T) {
		f := newAskFixture(t, waterLeaflets...)
		f.llm.err = errors.New("connection reset")
		w := &recordingWriter{}
		res, err := f.svc.StreamAnswer(context.Background(), "9", "Сколько воды пить?", w)
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.False(t, res.Aborted)
		assert.Equal(t, []string{AnswerUnavailable}, w.parts)
	})
	t.Run("after partial answer", func(t *testing.T) {
		f := newAskFixture(t, waterLeaflets...)
		f.llm.answer = "Пейте воду часто"
		f.llm.err = errors.New("connection reset")
		f.llm.partial = 2
		w := &recordingWriter{}
		res, err := f.svc.StreamAnswer(context.Background(), "9", "Сколько воды пить?", w)
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.True(t, res.Aborted)
		assert.Equal(t, AnswerUnavailable, res.Answer)
		assert.Equal(t, []string{"Пейте ", "воду "}, w.parts)
		assert.NotContains(t, strings.Join(w.parts, ""), AnswerUnavailable)
	})
}

func TestScreenRecordsCriticalOnly(t *testing.T) {
	f := newAskFixture(t)
	res := f.svc.Screen(context.Background(), "5", "температура 39 и озноб")
	assert.True(t, res.IsCritical)
	res = f.svc.Screen(context.Background(), "5", "всё хорошо")
	assert.False(t, res.IsCritical)
	assert.Empty(t, res.Flags)
	assert.Len(t, f.flags.entries, 1)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("SYS", "Q?", []model.QueryResult{{Content: "a"}, {Content: "b"}})
	assert.Equal(t, "SYS\n\nВопрос: Q?\n\nИзвлечённые выдержки из методичек:\na\n\nb\n\n"+
		"Ответь кратко и по делу. Если есть риски — предложи связаться с врачом.", p)
}
