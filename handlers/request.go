package handlers

import (
	"errors"
	"fmt"
	"net/netip"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"
	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/models"
)

// ClientIP is echo's RealIP with IPv4-mapped IPv6 addresses reported in dotted form.
func ClientIP(c echo.Context) string {
	ip := strings.TrimSpace(c.RealIP())
	if addr, err := netip.ParseAddr(ip); err == nil {
		return addr.Unmap().String()
	}
	return ip
}

// DeviceSummary renders a user agent as "Browser Version on OS Version".
func DeviceSummary(userAgent string) string {
	if userAgent == "" {
		return ""
	}

	ua := useragent.Parse(userAgent)

	browser := strings.TrimSpace(ua.Name + " " + ua.Version)
	os := strings.TrimSpace(ua.OS + " " + ua.OSVersion)

	switch {
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "Unknown Device"
	}
}

func requestOrigin(c echo.Context) models.Origin {
	return models.Origin{
		IP:     ClientIP(c),
		Device: DeviceSummary(c.Request().UserAgent()),
	}
}

// RequestValidator adapts go-playground/validator to echo. Failures are reported as
// apperror validation errors named after the json field.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

func (v *RequestValidator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperror.Validation(fe.Field(), validationMessage(fe))
	}
	return err
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
