package exferr

import stdErrors "errors"

// IsStorageError reports whether err is, or wraps, a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return stdErrors.As(err, &se)
}

// IsPathError reports whether err is, or wraps, a *PathError.
func IsPathError(err error) bool {
	var pe *PathError
	return stdErrors.As(err, &pe)
}

// IsAllocError reports whether err is, or wraps, a *AllocError.
func IsAllocError(err error) bool {
	var ae *AllocError
	return stdErrors.As(err, &ae)
}

// AsStorageError extracts a *StorageError from err's chain, if present.
func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if stdErrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// AsPathError extracts a *PathError from err's chain, if present.
func AsPathError(err error) (*PathError, bool) {
	var pe *PathError
	if stdErrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// AsAllocError extracts a *AllocError from err's chain, if present.
func AsAllocError(err error) (*AllocError, bool) {
	var ae *AllocError
	if stdErrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// GetCode extracts the taxonomy Code from the outermost ExFS2 error in
// err's chain, or CodeInternal if err carries none.
func GetCode(err error) Code {
	var coded interface{ Code() Code }
	if stdErrors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}
