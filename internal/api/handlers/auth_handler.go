package handlers

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/pkg/utils"
)

const tokenDuration = 24 * time.Hour

type AuthHandler struct {
	cfg config.AuthConfig
}

func NewAuthHandler(cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

type tokenRequest struct {
	APIKey   string `json:"api_key" validate:"required"`
	Operator string `json:"operator" validate:"omitempty,max=100"`
}

// IssueToken exchanges the shared API key for a signed bearer token.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	if h.cfg.APIKey == "" || h.cfg.SecretKey == "" ||
		subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.cfg.APIKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid api key",
		})
	}

	operator := req.Operator
	if operator == "" {
		operator = "api"
	}
	token, err := utils.GenerateToken(h.cfg.SecretKey, operator, tokenDuration)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"token":      token,
		"expires_at": time.Now().Add(tokenDuration).UTC(),
	})
}
