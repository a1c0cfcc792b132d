package handlers

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"node-ledger/services"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func statusFor(k services.Kind) int {
	switch k {
	case services.KindValidation, services.KindGateDenied:
		return fiber.StatusBadRequest
	case services.KindStateConflict:
		return fiber.StatusConflict
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindAuth:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every handler error as {detail}. Business rejections
// keep their message; anything else is logged and hidden.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var se *services.Error
	if errors.As(err, &se) {
		return c.Status(statusFor(se.Kind)).JSON(fiber.Map{"detail": se.Msg})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"detail": fe.Message})
	}

	log.WithError(err).WithFields(log.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error("[HTTP] unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": "internal error"})
}

// bind parses the JSON body into out and runs its validate tags.
func bind(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return services.ErrInvalidInput.WithMessage("Invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return services.ErrInvalidInput.WithMessage("Invalid %s", verrs[0].Field())
		}
		return services.ErrInvalidInput
	}
	return nil
}
