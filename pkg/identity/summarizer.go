package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/shouni/go-campaign-kit/pkg/prompts"
)

const traitsSchema = `{
  "type": "object",
  "required": ["traits"],
  "properties": {
    "traits": {
      "type": "array",
      "minItems": 1,
      "maxItems": 12,
      "items": {"type": "string", "minLength": 1, "maxLength": 120}
    }
  }
}`

// Completer はテキスト生成の最小限の契約です。
type Completer interface {
	Complete(ctx context.Context, systemContext, userPrompt string) (string, error)
}

// TextSummarizer はテキスト生成で外見上の特徴を JSON として抽出し、スキーマで検証します。
type TextSummarizer struct {
	completer Completer
	prompts   prompts.PromptBuilder
	schema    *jsonschema.Schema
}

// NewTextSummarizer は TextSummarizer を生成します。
func NewTextSummarizer(completer Completer, builder prompts.PromptBuilder) (*TextSummarizer, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer は必須です")
	}
	if builder == nil {
		return nil, fmt.Errorf("prompt builder は必須です")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("traits.json", strings.NewReader(traitsSchema)); err != nil {
		return nil, fmt.Errorf("failed to load traits schema: %w", err)
	}
	schema, err := compiler.Compile("traits.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile traits schema: %w", err)
	}
	return &TextSummarizer{completer: completer, prompts: builder, schema: schema}, nil
}

// Summarize は特徴のリストを返します。
func (s *TextSummarizer) Summarize(ctx context.Context, name, description string) ([]string, error) {
	userPrompt, err := s.prompts.Build(prompts.ModeIdentity, prompts.TemplateData{Name: name, Description: description})
	if err != nil {
		return nil, err
	}
	raw, err := s.completer.Complete(ctx, prompts.IdentitySystemContext, userPrompt)
	if err != nil {
		return nil, err
	}
	return s.parse(raw)
}

func (s *TextSummarizer) parse(raw string) ([]string, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, fmt.Errorf("特徴抽出の応答にJSONが含まれていません")
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("特徴抽出の応答のデコードに失敗しました: %w", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("特徴抽出の応答がスキーマに一致しません: %w", err)
	}

	var parsed struct {
		Traits []string `json:"traits"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("特徴抽出の応答のデコードに失敗しました: %w", err)
	}

	traits := make([]string, 0, len(parsed.Traits))
	for _, t := range parsed.Traits {
		if t = normalize(t); t != "" {
			traits = append(traits, t)
		}
	}
	return traits, nil
}

// extractJSONObject はコードフェンスなどに囲まれた応答から最初の JSON オブジェクトを取り出します。
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}
