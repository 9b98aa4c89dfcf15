package adapters

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// blockedFinishReasons はコンテンツポリシーによる打ち切りを示す終了理由です。
var blockedFinishReasons = map[string]struct{}{
	"SAFETY":                   {},
	"PROHIBITED_CONTENT":       {},
	"BLOCKLIST":                {},
	"SPII":                     {},
	"IMAGE_SAFETY":             {},
	"IMAGE_PROHIBITED_CONTENT": {},
}

// classifyStatus は HTTP ステータスコードから分類を決めます。
func classifyStatus(status int) domain.ProviderErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.TransientProviderError
	case status == http.StatusRequestTimeout, status >= 500:
		return domain.TransientProviderError
	default:
		return domain.UnknownProviderError
	}
}

// classifyTransport はネットワーク起因のエラーを一時的エラーとして扱います。
func classifyTransport(err error) (domain.ProviderErrorKind, bool) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.TransientProviderError, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.TransientProviderError, true
	}
	return domain.UnknownProviderError, false
}

// ClassifyGeminiError は Gemini API のエラーを分類します。
// 呼び出し側のキャンセルは分類せずにそのまま返します。
func ClassifyGeminiError(err error) error {
	if err == nil || isCallerCancel(err) {
		return err
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	kind := domain.UnknownProviderError
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		kind = classifyGeminiAPIError(apiErr)
	case errors.As(err, &apiErrPtr):
		kind = classifyGeminiAPIError(*apiErrPtr)
	default:
		if k, ok := classifyTransport(err); ok {
			kind = k
		} else if k, ok := classifyGeminiMessage(err); ok {
			kind = k
		}
	}
	return domain.NewProviderError(kind, ProviderGemini, err)
}

func classifyGeminiAPIError(apiErr genai.APIError) domain.ProviderErrorKind {
	status := strings.ToUpper(apiErr.Status)
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusTooManyRequests, status == "RESOURCE_EXHAUSTED":
		return domain.QuotaExceeded
	case apiErr.Code == http.StatusBadRequest && (strings.Contains(msg, "safety") || strings.Contains(msg, "blocked") || strings.Contains(msg, "prohibited")):
		return domain.ContentPolicyRejected
	case apiErr.Code == http.StatusForbidden && strings.Contains(msg, "billing"):
		return domain.QuotaExceeded
	default:
		return classifyStatus(apiErr.Code)
	}
}

// classifyGeminiMessage は型情報を失ったエラーを、クライアントが残したステータス文字列から分類します。
func classifyGeminiMessage(err error) (domain.ProviderErrorKind, bool) {
	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"), strings.Contains(msg, "ERROR 429"):
		return domain.QuotaExceeded, true
	case strings.Contains(msg, "UNAVAILABLE"), strings.Contains(msg, "ERROR 503"), strings.Contains(msg, "ERROR 500"):
		return domain.TransientProviderError, true
	default:
		return domain.UnknownProviderError, false
	}
}

// geminiBlocked は応答がセーフティフィルタで止められたかを判定します。
func geminiBlocked(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil {
		return "", false
	}
	if resp.PromptFeedback != nil && string(resp.PromptFeedback.BlockReason) != "" {
		return "prompt blocked: " + string(resp.PromptFeedback.BlockReason), true
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if _, ok := blockedFinishReasons[string(cand.FinishReason)]; ok {
			return "finish reason: " + string(cand.FinishReason), true
		}
	}
	return "", false
}

// ClassifyOpenAIError は OpenAI API のエラーを分類します。
func ClassifyOpenAIError(err error) error {
	if err == nil || isCallerCancel(err) {
		return err
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	kind := domain.UnknownProviderError
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind = classifyOpenAIAPIError(apiErr.StatusCode, apiErr.Code, apiErr.Message)
	} else if k, ok := classifyTransport(err); ok {
		kind = k
	}
	return domain.NewProviderError(kind, ProviderOpenAI, err)
}

func classifyOpenAIAPIError(status int, code, message string) domain.ProviderErrorKind {
	code = strings.ToLower(code)
	msg := strings.ToLower(message)
	switch {
	case code == "insufficient_quota" || code == "billing_hard_limit_reached":
		return domain.QuotaExceeded
	case status == http.StatusTooManyRequests && strings.Contains(msg, "quota"):
		return domain.QuotaExceeded
	case code == "content_policy_violation" || code == "moderation_blocked" || strings.Contains(msg, "safety system"):
		return domain.ContentPolicyRejected
	default:
		return classifyStatus(status)
	}
}

// isCallerCancel は呼び出し側のキャンセルや期限切れを判定します。これらはプロバイダーの失敗として扱いません。
func isCallerCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
