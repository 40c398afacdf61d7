// Package handler exposes the settlement services over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"settlement/pkg/apperror"
	"settlement/pkg/response"
)

// Roles carried in staff tokens.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

var (
	staffRoles   = []string{RoleAdmin, RoleManager, RoleCashier}
	managerRoles = []string{RoleAdmin, RoleManager}
)

// respondError writes err with the status of its kind. Unclassified errors are
// attached to the context for the request logger and answered with a generic 500.
func respondError(c *gin.Context, err error) {
	appErr := apperror.GetAppError(err)
	if appErr.Kind == apperror.KindInternal {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, apperror.ErrInternal.Message))
		return
	}
	c.JSON(appErr.Code, response.FromAppError(appErr))
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, apperror.FromValidation(err))
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body and leaves req at its zero value.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperror.Validation("invalid "+name, apperror.FieldError{Field: name, Message: "must be a UUID"}))
		return uuid.Nil, false
	}
	return id, true
}

// TicketResponse carries a rendered ticket ready for a receipt printer.
type TicketResponse struct {
	Text string `json:"text"`
}
