package exferr

// PathError reports a failure resolving or validating a path: a missing
// component, a component that is the wrong type, or an invalid name.
type PathError struct {
	*baseError
	path      string
	component string
}

// NewPathError creates a PathError with the given cause, code and message.
func NewPathError(err error, code Code, msg string) *PathError {
	return &PathError{baseError: newBaseError(err, code, msg)}
}

func (pe *PathError) WithPath(path string) *PathError {
	pe.path = path
	return pe
}

func (pe *PathError) WithComponent(component string) *PathError {
	pe.component = component
	return pe
}

func (pe *PathError) WithDetail(key string, value any) *PathError {
	pe.withDetail(key, value)
	return pe
}

func (pe *PathError) Path() string      { return pe.path }
func (pe *PathError) Component() string { return pe.component }
