package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/constant"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/dto"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/apiclient"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/extraction"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/llm"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ratelimit"
)

const chatModule = "ChatService"

// ChatServiceError is rendered as {error, code, retriable} by the model API.
type ChatServiceError struct {
	Status     int
	Code       string
	Message    string
	Retriable  bool
	RetryAfter int
}

func (e *ChatServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ChatServiceError) HTTPStatus() int {
	return e.Status
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

type IChatService interface {
	Chat(ctx context.Context, req *dto.ChatAPIRequest) (*dto.ChatAPIResponse, error)
	// Feedback returns nil when the model had nothing usable to say.
	Feedback(ctx context.Context, req *dto.FeedbackAPIRequest) (*apiclient.FeedbackResponse, error)
}

type chatService struct {
	provider llm.LLMProvider
	limiter  RateLimiter
	timeout  time.Duration
	logger   logger.ILogger
}

func NewChatService(provider llm.LLMProvider, limiter RateLimiter, timeout time.Duration, log logger.ILogger) IChatService {
	if log == nil {
		log = logger.NewNop()
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &chatService{
		provider: provider,
		limiter:  limiter,
		timeout:  timeout,
		logger:   log,
	}
}

func (s *chatService) Chat(ctx context.Context, req *dto.ChatAPIRequest) (*dto.ChatAPIResponse, error) {
	sc := req.SessionContext
	if err := s.checkRate(ctx, sc.ClientID); err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(req.Messages)+1)
	history = append(history, llm.Message{Role: constant.ChatRoleSystem, Content: BuildSystemPrompt(sc)})
	for _, m := range req.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.provider.Chat(callCtx, history, llm.WithJSON(), llm.WithTemperature(0.3))
	if err != nil {
		return nil, s.upstreamError(ctx, sc.SessionID, err)
	}

	reply, extracted, err := ParseModelReply(raw)
	if err != nil {
		s.logger.Warn(chatModule, "Model reply failed schema validation", map[string]interface{}{
			"session_id": sc.SessionID,
			"error":      err.Error(),
		})
		return nil, &ChatServiceError{
			Status:    http.StatusBadGateway,
			Code:      apiclient.CodeSchemaInvalid,
			Message:   "model response did not match the schema",
			Retriable: true,
		}
	}

	s.logger.Info(chatModule, "Chat turn served", map[string]interface{}{
		"session_id":  sc.SessionID,
		"messages":    len(req.Messages),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	resp := &dto.ChatAPIResponse{Reply: reply}
	if extracted != nil {
		resp.Extracted = extracted
	}
	return resp, nil
}

func (s *chatService) Feedback(ctx context.Context, req *dto.FeedbackAPIRequest) (*apiclient.FeedbackResponse, error) {
	if err := s.checkRate(ctx, req.ClientID); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.provider.Chat(callCtx, []llm.Message{
		{Role: constant.ChatRoleSystem, Content: constant.KyFeedbackPromptV1},
		{Role: constant.ChatRoleUser, Content: renderFeedbackInput(req)},
	}, llm.WithJSON(), llm.WithTemperature(0.5))
	if err != nil {
		return nil, s.upstreamError(ctx, req.SessionID, err)
	}

	var out apiclient.FeedbackResponse
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &out); err != nil {
		s.logger.Debug(chatModule, "Feedback reply not usable", map[string]interface{}{"session_id": req.SessionID})
		return nil, nil
	}
	out.Praise = strings.TrimSpace(out.Praise)
	out.Tip = strings.TrimSpace(out.Tip)
	if out.Praise == "" && out.Tip == "" {
		return nil, nil
	}
	return &out, nil
}

func (s *chatService) checkRate(ctx context.Context, clientID string) error {
	if s.limiter == nil {
		return nil
	}
	key := clientID
	if key == "" {
		key = "anonymous"
	}
	decision, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// Limiter outages must not take the interview down.
		s.logger.Warn(chatModule, "Rate limiter unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if decision.Allowed {
		return nil
	}
	return &ChatServiceError{
		Status:     http.StatusTooManyRequests,
		Code:       apiclient.CodeRateLimited,
		Message:    "too many requests",
		Retriable:  true,
		RetryAfter: int(math.Ceil(decision.RetryAfter.Seconds())),
	}
}

func (s *chatService) upstreamError(ctx context.Context, sessionID string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	details := map[string]interface{}{"session_id": sessionID, "error": err.Error()}
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn(chatModule, "LLM call timed out", details)
		return &ChatServiceError{
			Status:    http.StatusGatewayTimeout,
			Code:      apiclient.CodeTimeout,
			Message:   "model timed out",
			Retriable: true,
		}
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusTooManyRequests {
		s.logger.Warn(chatModule, "LLM backend is rate limiting", details)
		return &ChatServiceError{
			Status:     http.StatusTooManyRequests,
			Code:       apiclient.CodeRateLimited,
			Message:    "model backend is busy",
			Retriable:  true,
			RetryAfter: 10,
		}
	}

	s.logger.Error(chatModule, "LLM call failed", details)
	return &ChatServiceError{
		Status:    http.StatusServiceUnavailable,
		Code:      apiclient.CodeUpstream,
		Message:   "model backend unavailable",
		Retriable: true,
	}
}

type modelReply struct {
	Reply     string          `json:"reply"`
	Extracted json.RawMessage `json:"extracted"`
}

// ParseModelReply decodes {"reply", "extracted"} from raw model output. A
// blank reply or invalid extraction is an error.
func ParseModelReply(raw string) (string, *extraction.ExtractedData, error) {
	var out modelReply
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &out); err != nil {
		return "", nil, fmt.Errorf("%w: %v", extraction.ErrInvalidSchema, err)
	}
	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		return "", nil, fmt.Errorf("%w: empty reply", extraction.ErrInvalidSchema)
	}
	extracted, err := extraction.Parse(out.Extracted)
	if err != nil {
		return "", nil, err
	}
	return reply, extracted, nil
}

// stripCodeFences removes markdown fences and any prose around the object.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// BuildSystemPrompt renders the interviewer prompt with the session block
// and injected history appended.
func BuildSystemPrompt(sc apiclient.SessionContext) string {
	var b strings.Builder
	b.WriteString(constant.KySystemPromptV1)
	b.WriteString("\n\n")
	b.WriteString(constant.KySessionBlockHeader)

	line := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&b, "\n%s: %s", label, value)
		}
	}
	line("現場", sc.SiteName)
	line("作業者", sc.WorkerName)
	line("天候", sc.Weather)
	if sc.Temperature != nil {
		fmt.Fprintf(&b, "\n気温: %.1f℃", *sc.Temperature)
	}
	line("工程", sc.ProcessPhase)
	line("体調", sc.HealthCondition)
	line("段階", string(sc.Status))
	fmt.Fprintf(&b, "\n確定した作業数: %d", sc.CommittedCount)

	if item := sc.CurrentItem; item != nil {
		b.WriteString("\n聞き取り中の作業:")
		line("  作業内容", item.WorkDescription)
		line("  危険", item.HazardDescription)
		line("  なぜ危険か", strings.Join(item.WhyDangerous, " / "))
		if item.RiskLevel > 0 {
			fmt.Fprintf(&b, "\n  危険度: %d", item.RiskLevel)
		}
		for _, cm := range item.Countermeasures {
			fmt.Fprintf(&b, "\n  対策(%s): %s", cm.Category, cm.Text)
		}
	}
	line("行動目標", sc.ActionGoal)

	if injection := strings.TrimSpace(sc.ContextInjection); injection != "" {
		b.WriteString("\n\n")
		b.WriteString(injection)
	}
	return b.String()
}

func renderFeedbackInput(req *dto.FeedbackAPIRequest) string {
	var b strings.Builder
	if req.Context != "" {
		fmt.Fprintf(&b, "状況: %s\n", req.Context)
	}
	fmt.Fprintf(&b, "危険: %s\n", strings.Join(req.Extracted.Risks, "、"))
	fmt.Fprintf(&b, "対策: %s\n", strings.Join(req.Extracted.Measures, "、"))
	fmt.Fprintf(&b, "行動目標: %s", req.Extracted.ActionGoal)
	return b.String()
}
