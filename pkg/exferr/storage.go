package exferr

// StorageError reports a failure in the segment store or host I/O: a
// read/write that failed, or a segment that is missing or short. An
// allocator running out of space is reported as an AllocError.
type StorageError struct {
	*baseError
	kind    string // "inode" or "data"
	segment int
	slot    int
}

// NewStorageError creates a StorageError with the given cause, code and
// message. Use the With* builders to attach segment/slot context.
func NewStorageError(err error, code Code, msg string) *StorageError {
	return &StorageError{baseError: newBaseError(err, code, msg)}
}

func (se *StorageError) WithKind(kind string) *StorageError {
	se.kind = kind
	return se
}

func (se *StorageError) WithSegment(segment int) *StorageError {
	se.segment = segment
	return se
}

func (se *StorageError) WithSlot(slot int) *StorageError {
	se.slot = slot
	return se
}

func (se *StorageError) WithDetail(key string, value any) *StorageError {
	se.withDetail(key, value)
	return se
}

func (se *StorageError) Kind() string    { return se.kind }
func (se *StorageError) Segment() int    { return se.segment }
func (se *StorageError) Slot() int       { return se.slot }
