package models

import "fmt"

// Kind classifies an Error for callers that need to branch on failure mode
// (the dispatch loop, batch operations) without string-matching messages.
type Kind int

const (
	KindStorage Kind = iota
	KindHTTPCollector
	KindChatCollector
	KindUpdateNotSupported
	KindSourceKindConflict
	KindSourceNotFound
	KindSourceCreationError
)

func (k Kind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindHTTPCollector:
		return "http_collector"
	case KindChatCollector:
		return "chat_collector"
	case KindUpdateNotSupported:
		return "update_not_supported"
	case KindSourceKindConflict:
		return "source_kind_conflict"
	case KindSourceNotFound:
		return "source_not_found"
	case KindSourceCreationError:
		return "source_creation_error"
	default:
		return "unknown"
	}
}

// Error is the engine's single error type. It wraps Err (if any) and is
// comparable via errors.Is against any *Error of the same Kind (see Is).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, &Error{Kind: K}) match any *Error of kind K,
// regardless of message/wrapped error — the common sentinel-comparison idiom.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewStorageError(err error) *Error {
	return &Error{Kind: KindStorage, Err: err}
}

func NewHTTPCollectorError(err error) *Error {
	return &Error{Kind: KindHTTPCollector, Err: err}
}

func NewChatCollectorError(err error) *Error {
	return &Error{Kind: KindChatCollector, Err: err}
}

func NewUpdateNotSupported(kindName string) *Error {
	return &Error{Kind: KindUpdateNotSupported, Message: kindName}
}

func NewSourceKindConflict(kind SourceKind) *Error {
	return &Error{Kind: KindSourceKindConflict, Message: string(kind)}
}

func NewSourceNotFound() *Error {
	return &Error{Kind: KindSourceNotFound}
}

func NewSourceCreationError(message string) *Error {
	return &Error{Kind: KindSourceCreationError, Message: message}
}
