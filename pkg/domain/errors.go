package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound は参照されたIDが存在しない場合のエラーです。
	ErrNotFound = errors.New("not found")
	// ErrIdentityBuild はキャラクターの説明からビジュアルアイデンティティを導出できない場合のエラーです。
	ErrIdentityBuild = errors.New("identity build failed")
	// ErrInsufficientContent は要約対象のシーンが無い場合のエラーです。
	ErrInsufficientContent = errors.New("insufficient content")
	// ErrDanglingReference は参照が残ったまま削除しようとした場合のエラーです。
	ErrDanglingReference = errors.New("dangling reference")
	// ErrInvalidArgument は入力値が不正な場合のエラーです。
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundError は存在しないエンティティを参照したことを表します。
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFound は NotFoundError を生成します。
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IdentityBuildError はキャラクターのビジュアルアイデンティティ構築の失敗を表します。
type IdentityBuildError struct {
	CharacterID string
	Name        string
	Reason      string
}

func (e *IdentityBuildError) Error() string {
	return fmt.Sprintf("identity build failed for character %q (%s): %s", e.Name, e.CharacterID, e.Reason)
}

func (e *IdentityBuildError) Is(target error) bool { return target == ErrIdentityBuild }

// DanglingReferenceError は削除対象がまだ他のレコードから参照されていることを表します。
type DanglingReferenceError struct {
	Entity       string
	ID           string
	ReferencedBy []string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %q is still referenced by %s", e.Entity, e.ID, strings.Join(e.ReferencedBy, ", "))
}

func (e *DanglingReferenceError) Is(target error) bool { return target == ErrDanglingReference }

// ProviderErrorKind はプロバイダーエラーの分類です。
type ProviderErrorKind int

const (
	UnknownProviderError ProviderErrorKind = iota
	QuotaExceeded
	ContentPolicyRejected
	TransientProviderError
)

func (k ProviderErrorKind) String() string {
	switch k {
	case QuotaExceeded:
		return "QuotaExceeded"
	case ContentPolicyRejected:
		return "ContentPolicyRejected"
	case TransientProviderError:
		return "TransientProviderError"
	default:
		return "UnknownProviderError"
	}
}

// Message はユーザー向けの短い説明を返します。
func (k ProviderErrorKind) Message() string {
	switch k {
	case QuotaExceeded:
		return "insufficient quota"
	case ContentPolicyRejected:
		return "content rejected by policy"
	case TransientProviderError:
		return "temporary error, retry"
	default:
		return "unexpected error"
	}
}

// ProviderError は外部生成サービスの失敗を分類付きで保持します。
type ProviderError struct {
	Kind      ProviderErrorKind
	Provider  string // "gemini", "openai" など
	Operation string // 失敗した操作（"generate_scene" など）。上位層で設定されます
	Err       error
}

func (e *ProviderError) Error() string {
	var sb strings.Builder
	if e.Operation != "" {
		sb.WriteString(e.Operation)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Provider)
	sb.WriteString(" ")
	sb.WriteString(e.Kind.String())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UserMessage は画面表示用の文言を返します。失敗時にレコードが作られていないことも明示します。
func (e *ProviderError) UserMessage() string {
	op := e.Operation
	if op == "" {
		op = "generation"
	}
	return fmt.Sprintf("%s failed: %s. No record was created.", op, e.Kind.Message())
}

// NewProviderError は分類済みのプロバイダーエラーを生成します。
func NewProviderError(kind ProviderErrorKind, provider string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// ProviderKindOf は err が ProviderError を含む場合にその分類を返します。
func ProviderKindOf(err error) (ProviderErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return UnknownProviderError, false
}

// IsTransient は err が一時的なプロバイダーエラーかどうかを返します。
func IsTransient(err error) bool {
	kind, ok := ProviderKindOf(err)
	return ok && kind == TransientProviderError
}

// WithOperation は ProviderError に操作名を付与して返します。ProviderError でなければそのまま返します。
func WithOperation(err error, operation string) error {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return err
	}
	cp := *pe
	cp.Operation = operation
	return &cp
}
