package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

func GetOperator(c *fiber.Ctx) string {
	operator, _ := c.Locals("operator").(string)
	return operator
}

// parseBody decodes the JSON body into dst and runs its validation tags.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Validation("invalid request body")
	}
	return validateStruct(dst)
}

func validateStruct(dst any) error {
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperror.Validation("%s failed on %s", fe.Namespace(), fe.Tag())
		}
		return apperror.Validation("invalid request")
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid %s", name)
	}
	return id, nil
}

// respondError maps classified errors onto their HTTP status. Unclassified
// errors are logged and reported as internal without their text.
func respondError(c *fiber.Ctx, err error) error {
	typed := apperror.As(err)
	if typed == nil {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"kind":  apperror.KindInternal,
		})
	}

	body := fiber.Map{
		"error":     typed.Message,
		"kind":      typed.Kind,
		"retryable": typed.Retryable(),
	}
	if len(typed.Missing) > 0 {
		body["missing"] = typed.Missing
	}
	if typed.Kind == apperror.KindInternal || typed.Kind == apperror.KindConfig {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(apperror.HTTPStatus(err)).JSON(body)
}
