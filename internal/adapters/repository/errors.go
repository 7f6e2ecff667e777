package repository

import (
	"errors"

	"github.com/okian/barkwatch/internal/domain/model"
)

// Sentinel kinds for job store errors.
var (
	ErrNotFound     = model.ErrJobNotFound
	ErrInvalidJob   = model.ErrInvalidJob
	ErrDuplicateID  = errors.New("job id already exists")
	ErrInvalidLimit = errors.New("invalid job list limit")
)
