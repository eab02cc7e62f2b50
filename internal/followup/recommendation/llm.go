package recommendation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const systemPrompt = `You write short, friendly sales follow-up messages for a CRM.
Answer with one JSON object and nothing else:
{"subject": string, "body": string, "successProbability": number between 0 and 1,
 "recommendedAction": one of "call", "email", "sms", "meeting", "wait",
 "sendAt": optional RFC3339 timestamp}`

// maxSendAhead caps how far a model may push a reminder out.
const maxSendAhead = 7 * 24 * time.Hour

// LLMGenerator asks a language model for a recommendation.
type LLMGenerator struct {
	llm     model.LLM
	limiter *rate.Limiter
}

// NewLLMGenerator creates a generator. perMinute bounds outgoing calls;
// zero or less disables the limit.
func NewLLMGenerator(llm model.LLM, perMinute int) *LLMGenerator {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &LLMGenerator{llm: llm, limiter: limiter}
}

type llmAnswer struct {
	Subject            string  `json:"subject"`
	Body               string  `json:"body"`
	SuccessProbability float64 `json:"successProbability"`
	RecommendedAction  string  `json:"recommendedAction"`
	SendAt             string  `json:"sendAt"`
}

// Generate sends one prompt and parses the JSON answer.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (Recommendation, error) {
	if g == nil || g.llm == nil {
		return Recommendation{}, ErrDisabled
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return Recommendation{}, fmt.Errorf("recommendation rate limit: %w", err)
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return Recommendation{}, err
	}
	llmReq := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
		},
	}

	var text string
	for resp, err := range g.llm.GenerateContent(ctx, llmReq, false) {
		if err != nil {
			return Recommendation{}, fmt.Errorf("generate recommendation: %w", err)
		}
		if resp != nil && resp.Content != nil {
			for _, part := range resp.Content.Parts {
				if part != nil {
					text += part.Text
				}
			}
		}
	}

	return parseAnswer(text, req.Now)
}

func buildPrompt(req Request) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"lead": map[string]any{
			"name":   req.Lead.Name,
			"status": req.Lead.Status,
			"rating": req.Lead.Rating,
			"score":  req.Lead.Score,
		},
		"aging": map[string]any{
			"bucket":           req.Classification.Bucket.Name,
			"urgency":          req.Classification.Bucket.Urgency,
			"daysSinceContact": req.Classification.DaysSinceContact,
			"leadAgeDays":      req.Classification.LeadAgeDays,
			"followUpOverdue":  req.Classification.FollowUpOverdue,
		},
		"rule":          req.RuleName,
		"priority":      req.Priority,
		"channel":       req.Method,
		"draftTemplate": req.Template,
		"now":           req.Now.Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return "Draft the follow-up for this lead:\n" + string(payload), nil
}

func parseAnswer(text string, now time.Time) (Recommendation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return Recommendation{}, fmt.Errorf("empty recommendation")
	}

	var answer llmAnswer
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return Recommendation{}, fmt.Errorf("decode recommendation: %w", err)
	}
	if strings.TrimSpace(answer.Body) == "" {
		return Recommendation{}, fmt.Errorf("recommendation has no body")
	}

	rec := Recommendation{
		Subject:            strings.TrimSpace(answer.Subject),
		Body:               strings.TrimSpace(answer.Body),
		SuccessProbability: clamp01(answer.SuccessProbability),
		RecommendedAction:  strings.TrimSpace(answer.RecommendedAction),
	}
	if answer.SendAt != "" {
		if at, err := time.Parse(time.RFC3339, answer.SendAt); err == nil && at.After(now) {
			if limit := now.Add(maxSendAhead); at.After(limit) {
				at = limit
			}
			at = at.UTC()
			rec.SendAt = &at
		}
	}
	return rec, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
