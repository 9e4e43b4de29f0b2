package core

import "errors"

var (
	// ErrUnknownVerdict is returned for verdict codes outside the documented enum
	ErrUnknownVerdict = errors.New("unknown verdict code")

	// ErrUnsupportedHashType is returned for hash types other than md5, sha1 and sha256
	ErrUnsupportedHashType = errors.New("unsupported hash type")

	// ErrMissingArtifact is returned when an intermediate file a pass depends on does not exist
	ErrMissingArtifact = errors.New("missing artifact")

	// ErrInvalidQuery is returned when a query body is not a JSON object
	ErrInvalidQuery = errors.New("invalid query")
)
