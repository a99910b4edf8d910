// Package validation rejects malformed feedback and ingestion payloads before
// they reach the handlers.
package validation

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var scriptPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror\s*=|onload\s*=|onclick\s*=)`)

type Config struct {
	MaxCommentLength  int
	MaxQuestionLength int
	MaxAnswerLength   int

	// Routes
	FeedbackPath string
	IngestPath   string

	AllowedContentTypes []string
	Logger              *zap.Logger
}

type feedbackPayload struct {
	FaqID           string `json:"faqId"`
	Type            string `json:"feedbackType"`
	Comment         string `json:"comment"`
	SuggestedAnswer string `json:"suggestedAnswer"`
}

type ingestPayload struct {
	Data struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"data"`
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxCommentLength == 0 {
		cfg.MaxCommentLength = 2000
	}
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 1000
	}
	if cfg.MaxAnswerLength == 0 {
		cfg.MaxAnswerLength = 20000
	}
	if cfg.FeedbackPath == "" {
		cfg.FeedbackPath = "/api/v1/feedback"
	}
	if cfg.IngestPath == "" {
		cfg.IngestPath = "/api/v1/ingest"
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		if contentType := c.Get(fiber.HeaderContentType); contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		var problem string
		switch c.Path() {
		case cfg.FeedbackPath:
			problem = validateFeedback(c.Body(), cfg)
		case cfg.IngestPath:
			problem = validateIngest(c.Body(), cfg)
		default:
			return c.Next()
		}

		if problem != "" {
			cfg.Logger.Warn("Rejected request payload",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.String("reason", problem),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": problem,
			})
		}

		return c.Next()
	}
}

func validateFeedback(body []byte, cfg Config) string {
	var p feedbackPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "Invalid JSON format"
	}
	if strings.TrimSpace(p.FaqID) == "" {
		return "faqId is required"
	}
	if strings.TrimSpace(p.Type) == "" {
		return "feedbackType is required"
	}
	if utf8.RuneCountInString(p.Comment) > cfg.MaxCommentLength {
		return "comment exceeds maximum length"
	}
	if utf8.RuneCountInString(p.SuggestedAnswer) > cfg.MaxAnswerLength {
		return "suggestedAnswer exceeds maximum length"
	}
	if containsScript(p.Comment) || containsScript(p.SuggestedAnswer) {
		return "Invalid feedback content"
	}
	return ""
}

func validateIngest(body []byte, cfg Config) string {
	var p ingestPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "Invalid JSON format"
	}
	if strings.TrimSpace(p.Data.Question) == "" {
		return "data.question is required"
	}
	if utf8.RuneCountInString(p.Data.Question) > cfg.MaxQuestionLength {
		return "question exceeds maximum length"
	}
	if utf8.RuneCountInString(p.Data.Answer) > cfg.MaxAnswerLength {
		return "answer exceeds maximum length"
	}
	if containsScript(p.Data.Question) || containsScript(p.Data.Answer) {
		return "Invalid candidate content"
	}
	return ""
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.HasPrefix(strings.ToLower(contentType), t) {
			return true
		}
	}
	return false
}

func containsScript(input string) bool {
	return scriptPattern.MatchString(input)
}
