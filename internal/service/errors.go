package service

import (
	"errors"

	"github.com/sakif/postboard/internal/apperror"
)

func isNotFound(err error) bool  { return errors.Is(err, apperror.ErrNotFound) }
func isForbidden(err error) bool { return errors.Is(err, apperror.ErrForbidden) }
func isConflict(err error) bool  { return errors.Is(err, apperror.ErrConflict) }
