package core

import (
	"errors"
	"fmt"
)

// Kind 错误分类，调用方据此决定重试 / 中止
type Kind uint8

const (
	KindUnknown Kind = iota

	// codec
	KindEncodingOverflow
	KindSchemaMismatch
	KindUnknownVariant

	// pda
	KindAddressSpaceExhausted
	KindSeedTooLong

	// instruction builder（本地校验，必须在任何网络调用前失败）
	KindEmptyAccountRefs
	KindMissingSigner
	KindConflictingAccountRef
	KindInconsistentEntryKey
	KindInvalidModel

	// submit
	KindEmptyBatch
	KindAuthorityReleased
	KindDuplicateIntent
	KindTransportError
	KindPreflightRejected
	KindTimedOut
)

var kindNames = map[Kind]string{
	KindUnknown:               "Unknown",
	KindEncodingOverflow:      "EncodingOverflow",
	KindSchemaMismatch:        "SchemaMismatch",
	KindUnknownVariant:        "UnknownVariant",
	KindAddressSpaceExhausted: "AddressSpaceExhausted",
	KindSeedTooLong:           "SeedTooLong",
	KindEmptyAccountRefs:      "EmptyAccountRefs",
	KindMissingSigner:         "MissingSigner",
	KindConflictingAccountRef: "ConflictingAccountRef",
	KindInconsistentEntryKey:  "InconsistentEntryKey",
	KindInvalidModel:          "InvalidModel",
	KindEmptyBatch:            "EmptyBatch",
	KindAuthorityReleased:     "AuthorityReleased",
	KindDuplicateIntent:       "DuplicateIntent",
	KindTransportError:        "TransportError",
	KindPreflightRejected:     "PreflightRejected",
	KindTimedOut:              "TimedOut",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error 带分类的错误：Kind 给程序判断，Reason 给人看（可直接写日志）
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按 Kind 匹配，errors.Is(err, core.ErrSchemaMismatch) 即可判断类别
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// 各类别的哨兵值，仅用于 errors.Is 比较
var (
	ErrEncodingOverflow      = &Error{Kind: KindEncodingOverflow}
	ErrSchemaMismatch        = &Error{Kind: KindSchemaMismatch}
	ErrUnknownVariant        = &Error{Kind: KindUnknownVariant}
	ErrAddressSpaceExhausted = &Error{Kind: KindAddressSpaceExhausted}
	ErrSeedTooLong           = &Error{Kind: KindSeedTooLong}
	ErrEmptyAccountRefs      = &Error{Kind: KindEmptyAccountRefs}
	ErrMissingSigner         = &Error{Kind: KindMissingSigner}
	ErrConflictingAccountRef = &Error{Kind: KindConflictingAccountRef}
	ErrInconsistentEntryKey  = &Error{Kind: KindInconsistentEntryKey}
	ErrInvalidModel          = &Error{Kind: KindInvalidModel}
	ErrEmptyBatch            = &Error{Kind: KindEmptyBatch}
	ErrAuthorityReleased     = &Error{Kind: KindAuthorityReleased}
	ErrDuplicateIntent       = &Error{Kind: KindDuplicateIntent}
	ErrTransportError        = &Error{Kind: KindTransportError}
	ErrPreflightRejected     = &Error{Kind: KindPreflightRejected}
	ErrTimedOut              = &Error{Kind: KindTimedOut}
)

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 取出错误链上第一个 *Error 的 Kind
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retriable 只有 TransportError 可以重试（且必须重发同一个已签名 envelope）
func Retriable(err error) bool {
	return KindOf(err) == KindTransportError
}

// IsLocal 本地校验类错误（codec / pda / builder），发生时不应有任何网络调用
func IsLocal(err error) bool {
	switch KindOf(err) {
	case KindEncodingOverflow, KindSchemaMismatch, KindUnknownVariant,
		KindAddressSpaceExhausted, KindSeedTooLong,
		KindEmptyAccountRefs, KindMissingSigner, KindConflictingAccountRef,
		KindInconsistentEntryKey, KindInvalidModel, KindEmptyBatch, KindAuthorityReleased:
		return true
	default:
		return false
	}
}
