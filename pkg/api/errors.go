package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bombily/pkg/pricing"
	"bombily/pkg/schedule"
	"bombily/service"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{schedule.ErrInvalidTimeComponent, http.StatusBadRequest, "invalid_time_component"},
	{schedule.ErrInvalidDay, http.StatusBadRequest, "invalid_day"},
	{schedule.ErrTimeAlreadyPassed, http.StatusBadRequest, "time_already_passed"},
	{schedule.ErrLeadTimeTooShort, http.StatusBadRequest, "lead_time_too_short"},
	{pricing.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{pricing.ErrBadQuantity, http.StatusBadRequest, "bad_quantity"},
	{pricing.ErrUnknownProduct, http.StatusBadRequest, "unknown_product"},
	{pricing.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
	{pricing.ErrWrongShop, http.StatusBadRequest, "wrong_shop"},
	{service.ErrInvalidOrder, http.StatusBadRequest, "invalid_order"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{service.ErrInvalidPhone, http.StatusBadRequest, "invalid_phone"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrNotAssigned, http.StatusForbidden, "not_assigned"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrStaleTransition, http.StatusConflict, "stale_transition"},
	{service.ErrCollaboratorUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

func writeError(c *gin.Context, err error) {
	for _, e := range errorTable {
		if !errors.Is(err, e.err) {
			continue
		}
		msg := err.Error()
		if e.status == http.StatusServiceUnavailable {
			// storage details stay in the log
			msg = e.err.Error()
		}
		c.AbortWithStatusJSON(e.status, errorResponse{Error: msg, Code: e.code})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}
