package olm

import "errors"

// ErrorCode classifies the sentinel errors this package returns, for
// callers that need to bucket failures by cause rather than match on a
// specific sentinel.
type ErrorCode int

const (
	CodeSuccess ErrorCode = iota
	CodeInvalidParameter
	CodeNotOLMFile
	CodeFileIOError
	CodeFileCorrupted
	CodeNoMemory
	CodeInvalidFileHandle
	CodeMessageCorrupted
	CodeAttachmentCorrupted
	CodeAttachmentNotFound
)

func (c ErrorCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInvalidParameter:
		return "invalid parameter"
	case CodeNotOLMFile:
		return "not an OLM file"
	case CodeFileIOError:
		return "file I/O error"
	case CodeFileCorrupted:
		return "file corrupted"
	case CodeNoMemory:
		return "allocation failed"
	case CodeInvalidFileHandle:
		return "invalid file handle"
	case CodeMessageCorrupted:
		return "message corrupted"
	case CodeAttachmentCorrupted:
		return "attachment corrupted"
	case CodeAttachmentNotFound:
		return "attachment not found"
	default:
		return "unknown error"
	}
}

// Sentinel errors. Every error this package returns satisfies errors.Is
// against exactly one of these, so callers can branch on cause without
// string matching.
var (
	ErrInvalidParameter    = errors.New("olm: invalid parameter")
	ErrNotOLMFile          = errors.New("olm: not an OLM file")
	ErrFileIOError         = errors.New("olm: file I/O error")
	ErrFileCorrupted       = errors.New("olm: file corrupted")
	ErrNoMemory            = errors.New("olm: allocation failed")
	ErrInvalidFileHandle   = errors.New("olm: invalid file handle")
	ErrMessageCorrupted    = errors.New("olm: message corrupted")
	ErrAttachmentCorrupted = errors.New("olm: attachment corrupted")
	ErrAttachmentNotFound  = errors.New("olm: attachment not found")

	// ErrContactsUnsupported is returned by GetContactAt. Contact entries are
	// cataloged (see (*Handle).ContactCount) but, as in the reference
	// implementation, never parsed.
	ErrContactsUnsupported = errors.New("olm: contact parsing is not supported")
)

var codeBySentinel = map[error]ErrorCode{
	ErrInvalidParameter:    CodeInvalidParameter,
	ErrNotOLMFile:          CodeNotOLMFile,
	ErrFileIOError:         CodeFileIOError,
	ErrFileCorrupted:       CodeFileCorrupted,
	ErrNoMemory:            CodeNoMemory,
	ErrInvalidFileHandle:   CodeInvalidFileHandle,
	ErrMessageCorrupted:    CodeMessageCorrupted,
	ErrAttachmentCorrupted: CodeAttachmentCorrupted,
	ErrAttachmentNotFound:  CodeAttachmentNotFound,
}

// Code reports the ErrorCode a given error carries, by matching it against
// the package's sentinel errors with errors.Is. A nil error reports
// CodeSuccess; an error that doesn't wrap any sentinel with a code
// (including ErrContactsUnsupported) reports CodeFileIOError.
func Code(err error) ErrorCode {
	if err == nil {
		return CodeSuccess
	}
	for sentinel, code := range codeBySentinel {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeFileIOError
}
