package exferr

// AllocError reports a failure in the block map or allocators: a
// corrupted pointer chain, a file that outgrew the indirection depth,
// or an attempt to free something that should never be freed (block 0,
// inode 0).
type AllocError struct {
	*baseError
	kind   string // "inode" or "data"
	global int
}

// NewAllocError creates an AllocError with the given cause, code and message.
func NewAllocError(err error, code Code, msg string) *AllocError {
	return &AllocError{baseError: newBaseError(err, code, msg)}
}

func (ae *AllocError) WithKind(kind string) *AllocError {
	ae.kind = kind
	return ae
}

func (ae *AllocError) WithGlobal(global int) *AllocError {
	ae.global = global
	return ae
}

func (ae *AllocError) WithDetail(key string, value any) *AllocError {
	ae.withDetail(key, value)
	return ae
}

func (ae *AllocError) Kind() string { return ae.kind }
func (ae *AllocError) Global() int  { return ae.global }
