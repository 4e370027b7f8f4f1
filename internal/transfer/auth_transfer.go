package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims identifies the operator a dashboard token was issued to.
type CustomClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}
