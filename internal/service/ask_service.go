package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"baria-go/internal/model"
	"baria-go/internal/repository"
	"baria-go/internal/screening"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/llm"
	"baria-go/pkg/log"
	"baria-go/pkg/metrics"
	"baria-go/pkg/tasks"
)

// Patient-facing fallbacks.
const (
	AnswerNoData      = "Нет подходящих данных, обратитесь к врачу."
	AnswerUnavailable = "❌ Сервис ИИ временно недоступен.\n\n🏥 Рекомендуем обратиться к врачу за консультацией."
)

const (
	defaultAskTopK       = 5
	defaultTemperature   = 0.2
	defaultLLMTimeout    = 30 * time.Second
	alertPublishTimeout  = 5 * time.Second
	historyMessagesInCtx = 10
)

// Publisher sends a keyed JSON message; *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, v interface{}) error
}

// AskResult is the answer to one patient question.
type AskResult struct {
	Answer   string           `json:"answer"`
	Sources  []string         `json:"sources"`
	Critical bool             `json:"critical"`
	Severity int              `json:"severity"`
	Flags    []screening.Flag `json:"flags"`
	// Notes carries the messages of non-critical flags.
	Notes    []string `json:"notes,omitempty"`
	Fallback bool     `json:"fallback"`
	// Aborted marks a streamed answer cut off by an LLM failure.
	Aborted bool `json:"aborted,omitempty"`
}

// AskService screens a patient question and, when it is not an emergency,
// answers it from the indexed leaflets.
type AskService interface {
	Ask(ctx context.Context, userID, question string) (*AskResult, error)
	// StreamAnswer is Ask with the answer written to w as it is generated.
	StreamAnswer(ctx context.Context, userID, question string, w llm.MessageWriter) (*AskResult, error)
	// Screen runs screening only, recording critical results like Ask does.
	Screen(ctx context.Context, userID, text string) screening.Result
}

// AskDeps are the collaborators of the ask service. Conversations, RedFlags
// and Alerts may be nil.
type AskDeps struct {
	Screener      *screening.Screener
	Retrieval     RetrievalService
	LLM           llm.Client
	Conversations repository.ConversationRepository
	RedFlags      repository.RedFlagRepository
	Alerts        Publisher
	Metrics       *metrics.Metrics
}

type AskOptions struct {
	TopK         int
	MinScore     *float64
	SystemPrompt string
	Temperature  float64
	LLMTimeout   time.Duration
}

type askService struct {
	AskDeps
	opts AskOptions
}

func NewAskService(deps AskDeps, opts AskOptions) AskService {
	if opts.TopK <= 0 {
		opts.TopK = defaultAskTopK
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = defaultLLMTimeout
	}
	return &askService{AskDeps: deps, opts: opts}
}

func (s *askService) Ask(ctx context.Context, userID, question string) (*AskResult, error) {
	return s.answer(ctx, userID, question, nil)
}

func (s *askService) StreamAnswer(ctx context.Context, userID, question string, w llm.MessageWriter) (*AskResult, error) {
	return s.answer(ctx, userID, question, w)
}

func (s *askService) Screen(ctx context.Context, userID, text string) screening.Result {
	res := s.Screener.Screen(text)
	s.Metrics.ObserveScreening(res.IsCritical, res.Categories())
	if res.IsCritical {
		s.recordEmergency(ctx, userID, text, res)
	}
	return res
}

func (s *askService) answer(ctx context.Context, userID, question string, w llm.MessageWriter) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.Invalidf("question is empty")
	}
	userID = strings.TrimSpace(userID)

	// Screening runs before any other check; a warning never waits on the user id.
	screen := s.Screen(ctx, userID, question)
	res := &AskResult{
		Sources:  []string{},
		Critical: screen.IsCritical,
		Severity: screen.MaxSeverity,
		Flags:    screen.Flags,
	}

	if screen.IsCritical {
		log.Warnf("[AskService] critical symptoms for user %q: %v (severity %d)", userID, screen.Categories(), screen.MaxSeverity)
		res.Answer = screening.FormatWarning(screen.Flags)
		writeWhole(w, res.Answer)
		if userID != "" {
			s.remember(userID, question, res.Answer)
			s.setState(ctx, userID, model.StateEmergencyDetected, screen.MaxSeverity)
		}
		return res, nil
	}
	if userID == "" {
		return nil, apperrors.Invalidf("user_id is required")
	}
	for _, f := range screen.Flags {
		res.Notes = append(res.Notes, f.Message)
	}

	s.setState(ctx, userID, model.StateAwaitingAnswer, screen.MaxSeverity)

	results, err := s.Retrieval.Search(ctx, question, s.opts.TopK, s.opts.MinScore)
	switch {
	case err != nil:
		log.Errorf("[AskService] search failed for user %s: %v", userID, err)
		res.Answer, res.Fallback = AnswerUnavailable, true
	case len(results) == 0:
		res.Answer, res.Fallback = AnswerNoData, true
	default:
		messages := s.buildMessages(ctx, userID, question, results)
		answer, streamed, err := s.generate(ctx, messages, w)
		switch {
		case err != nil:
			s.Metrics.LLMFailure()
			log.Errorf("[AskService] llm failed for user %s after %d streamed parts: %v", userID, streamed, err)
			res.Answer, res.Fallback = AnswerUnavailable, true
			// part of the answer already reached the client
			res.Aborted = streamed > 0
		case answer == "":
			res.Answer, res.Fallback = AnswerNoData, true
		default:
			res.Answer = answer
			res.Sources = distinctSources(results)
		}
	}
	if res.Fallback && !res.Aborted {
		writeWhole(w, res.Answer)
	}

	s.remember(userID, question, res.Answer)
	s.setState(ctx, userID, model.StateIdle, screen.MaxSeverity)
	return res, nil
}

// countingWriter counts the deltas that reached the client.
type countingWriter struct {
	llm.MessageWriter
	n int
}

func (c *countingWriter) WriteMessage(messageType int, data []byte) error {
	if err := c.MessageWriter.WriteMessage(messageType, data); err != nil {
		return err
	}
	c.n++
	return nil
}

// generate returns the answer and how many deltas were streamed to w.
func (s *askService) generate(ctx context.Context, messages []llm.Message, w llm.MessageWriter) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.LLMTimeout)
	defer cancel()
	temperature := s.opts.Temperature
	gen := &llm.GenerationParams{Temperature: &temperature}
	if w == nil {
		answer, err := s.LLM.Chat(ctx, messages, gen)
		return answer, 0, err
	}
	cw := &countingWriter{MessageWriter: w}
	answer, err := s.LLM.StreamChat(ctx, messages, gen, cw)
	return strings.TrimSpace(answer), cw.n, err
}

// buildMessages lays out system prompt, recent history, then the question
// with the retrieved excerpts.
func (s *askService) buildMessages(ctx context.Context, userID, question string, results []model.QueryResult) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: s.opts.SystemPrompt}}
	for _, m := range s.history(ctx, userID) {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: BuildPrompt(s.opts.SystemPrompt, question, results)})
	return messages
}

// BuildPrompt renders the user turn: instructions, question, excerpts
// separated by blank lines, closing request.
func BuildPrompt(systemPrompt, question string, results []model.QueryResult) string {
	excerpts := make([]string, len(results))
	for i, r := range results {
		excerpts[i] = r.Content
	}
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Вопрос: %s\n\n", question)
	fmt.Fprintf(&b, "Извлечённые выдержки из методичек:\n%s\n\n", strings.Join(excerpts, "\n\n"))
	b.WriteString("Ответь кратко и по делу. Если есть риски — предложи связаться с врачом.")
	return b.String()
}

func distinctSources(results []model.QueryResult) []string {
	seen := make(map[string]bool, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Source == "" || seen[r.Source] {
			continue
		}
		seen[r.Source] = true
		out = append(out, r.Source)
	}
	return out
}

func (s *askService) history(ctx context.Context, userID string) []model.ChatMessage {
	if s.Conversations == nil {
		return nil
	}
	h, err := s.Conversations.GetHistory(ctx, userID)
	if err != nil {
		log.Errorf("[AskService] failed to load history for user %s: %v", userID, err)
		return nil
	}
	if len(h) > historyMessagesInCtx {
		h = h[len(h)-historyMessagesInCtx:]
	}
	return h
}

// remember uses a background context so a cancelled request still keeps
// the exchange.
func (s *askService) remember(userID, question, answer string) {
	if s.Conversations == nil {
		return
	}
	now := time.Now()
	err := s.Conversations.AppendHistory(context.Background(), userID,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if err != nil {
		log.Errorf("[AskService] failed to save history for user %s: %v", userID, err)
	}
}

func (s *askService) setState(ctx context.Context, userID, state string, severity int) {
	if s.Conversations == nil {
		return
	}
	err := s.Conversations.SetState(ctx, userID, model.SessionState{State: state, LastSeverity: severity, UpdatedAt: time.Now()})
	if err != nil {
		log.Errorf("[AskService] failed to set state %s for user %s: %v", state, userID, err)
	}
}

// recordEmergency logs the event in MySQL and publishes an alert in the
// background. Neither may delay or fail the warning.
func (s *askService) recordEmergency(ctx context.Context, userID, text string, res screening.Result) {
	categories := res.Categories()
	if s.RedFlags != nil {
		entry := &model.RedFlagLog{
			UserID:      userID,
			Text:        text,
			MaxSeverity: res.MaxSeverity,
			Categories:  strings.Join(categories, ","),
		}
		if err := s.RedFlags.Create(ctx, entry); err != nil {
			log.Errorf("[AskService] failed to store red flag for user %s: %v", userID, err)
		}
	}
	if s.Alerts == nil {
		return
	}
	alert := tasks.RedFlagAlert{
		UserID:      userID,
		Text:        text,
		MaxSeverity: res.MaxSeverity,
		Categories:  categories,
		DetectedAt:  time.Now(),
	}
	go func() {
		actx, cancel := context.WithTimeout(context.Background(), alertPublishTimeout)
		defer cancel()
		if err := s.Alerts.Publish(actx, userID, alert); err != nil {
			log.Errorf("[AskService] failed to publish red flag alert for user %s: %v", userID, err)
		}
	}()
}

func writeWhole(w llm.MessageWriter, text string) {
	if w == nil {
		return
	}
	if err := w.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		log.Warnf("[AskService] failed to write answer: %v", err)
	}
}
