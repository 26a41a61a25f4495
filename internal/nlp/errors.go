package nlp

import "errors"

// ErrUnavailable is returned when enrichment is requested from a backend that cannot serve it.
var ErrUnavailable = errors.New("nlp backend unavailable")
