package errs

const (
	ServerInternalError = 500
	ArgsError           = 1001

	InvalidStructureError = 2000 // parent of every payload rejection
	MalformedFrameError   = 2001 // not JSON at all
	UnknownShapeError     = 2002 // JSON, but neither chat nor registration
	BadFieldError         = 2003 // right keys, wrong field types
)

var (
	ErrInternal = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs     = NewCodeError(ArgsError, "ArgsError")

	ErrInvalidStructure = NewCodeError(InvalidStructureError, "Invalid JSON structure")
	ErrMalformedFrame   = NewCodeError(MalformedFrameError, "MalformedFrame")
	ErrUnknownShape     = NewCodeError(UnknownShapeError, "UnknownShape")
	ErrBadField         = NewCodeError(BadFieldError, "BadField")
)

func init() {
	for _, child := range []int{MalformedFrameError, UnknownShapeError, BadFieldError} {
		_ = DefaultCodeRelation.Add(InvalidStructureError, child)
	}
}
