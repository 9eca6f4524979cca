package graph

import "errors"

// ErrCyclicDependency indicates an execution scope whose dependencies can
// never resolve. The scheduler treats this as fatal at run start.
var ErrCyclicDependency = errors.New("cyclic dependency in execution scope")
