package recovery

// Strategy decides what happens when the lexer, the xref resolver or the
// object loader hits a problem it could work around.
type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	default:
		return "unknown"
	}
}

type Context interface{ Done() <-chan struct{} }

// Tolerates reports whether s lets the caller continue past err.
func Tolerates(s Strategy, ctx Context, err error, loc Location) bool {
	if s == nil {
		return false
	}
	switch s.OnError(ctx, err, loc) {
	case ActionSkip, ActionFix:
		return true
	default:
		return false
	}
}
