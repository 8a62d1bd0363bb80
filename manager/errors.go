package manager

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/content-service-backend/interfaces"
)

// fail wraps err into a ManagerError carrying err's status hint.
func fail(subsystem string, err error, format string, args ...any) *interfaces.ManagerError {
	var me *interfaces.ManagerError
	if errors.As(err, &me) {
		return me
	}
	return &interfaces.ManagerError{
		Status:    interfaces.StatusHint(err),
		Message:   fmt.Sprintf(format, args...),
		Subsystem: subsystem,
		Err:       err,
	}
}

func badRequest(format string, args ...any) *interfaces.ManagerError {
	return &interfaces.ManagerError{
		Status:    http.StatusBadRequest,
		Message:   fmt.Sprintf(format, args...),
		Subsystem: interfaces.SubsystemValidation,
		Err:       interfaces.ErrValidation,
	}
}

func invalid(errs []string) *interfaces.ManagerError {
	verr := &interfaces.ValidationError{Errors: errs}
	return &interfaces.ManagerError{
		Status:    http.StatusBadRequest,
		Message:   "properties violate collection constraints",
		Subsystem: interfaces.SubsystemValidation,
		Err:       verr,
	}
}
