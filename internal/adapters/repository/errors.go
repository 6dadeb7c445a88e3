package repository

import "errors"

// Sentinel kinds for store errors. Missing matches and players use the
// model package's not-found errors.
var (
	ErrExists       = errors.New("record already exists")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
