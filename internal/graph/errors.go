package graph

import "errors"

// ErrNotFound is returned when an operation targets a node that does not
// exist (for example linking to an unknown uuid).
var ErrNotFound = errors.New("graph: node not found")
