package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/erp/shipping/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator makes binding errors name fields by their JSON tag, so a
// failed OrderNumbersRequest reports "orderNumbers" rather than
// "OrderNumbers". Call once at startup.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// BindError answers a failed ShouldBindJSON. Validation failures list the
// offending fields; anything else (malformed JSON) is a plain 400.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		h.BadRequest(c, "Malformed request body")
		return
	}

	resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeValidation, "Request validation failed", getRequestID(c))
	for _, e := range verrs {
		resp.Error.Fields = append(resp.Error.Fields, dto.ValidationDetail{
			Field:   e.Field(),
			Message: validationMessage(e),
		})
	}
	c.JSON(http.StatusBadRequest, resp)
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Must contain at least " + e.Param() + " entries"
	case "max":
		return "Must contain at most " + e.Param() + " entries"
	case "dive", "required_without":
		return "Invalid value"
	default:
		return "Invalid value (" + e.Tag() + ")"
	}
}
