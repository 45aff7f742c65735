package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/config"
)

const (
	issuer    = "referral-bot"
	roleAdmin = "admin"
)

var ErrNoSecret = errors.New("auth: JWT_ACCESS_SECRET is not set")

// Claims токена администратора для ops API; UserID это Telegram id
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// GenerateAdminToken выпускает access-токен администратора
func GenerateAdminToken(cfg *config.Config, userID int64) (string, error) {
	if cfg.JWTSecret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   roleAdmin,
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.JWTAccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// ValidateAccessToken проверяет подпись, срок и тип токена
func ValidateAccessToken(cfg *config.Config, tokenString string) (*Claims, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.Type != "access" {
			return nil, errors.New("token is not an access token")
		}
		if claims.Role != roleAdmin {
			return nil, errors.New("token has no admin role")
		}
		return claims, nil
	}
	return nil, errors.New("invalid access token")
}
