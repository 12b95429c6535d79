package archival

import "errors"

// ErrInvalidRequest is returned for malformed archive or restore requests.
var ErrInvalidRequest = errors.New("archival: invalid request") //nolint:gochecknoglobals // sentinel error
