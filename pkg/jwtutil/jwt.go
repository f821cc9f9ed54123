package jwtutil

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/leonguyen52/sprout-track-sub003/pkg/config"
)

var (
	secret     = []byte("sprout-track-secret")
	expiration = time.Hour * 24
)

// Token kinds carried in SessionClaims.Kind. Handlers use the kind to decide
// which authorization path applies; claims alone never authorize privileged
// mutations (membership is re-verified against the store).
const (
	KindSysAdmin  = "sysadmin"
	KindCaretaker = "caretaker"
	KindSetup     = "setup"
	KindAccount   = "account"
)

// SessionClaims represents the JWT claims for an authenticated session
type SessionClaims struct {
	Kind       string `json:"kind"`
	SubjectID  uint   `json:"subject_id,omitempty"` // caretaker or account id
	LoginID    string `json:"login_id,omitempty"`
	FamilyID   *uint  `json:"family_id,omitempty"`
	FamilySlug string `json:"family_slug,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Role       string `json:"role,omitempty"` // caretaker's role within the family
	jwt.RegisteredClaims
}

// Initialize configures the signing key and token lifetime from config
func Initialize(cfg *config.JWTConfig) {
	if cfg.SigningKey != "" {
		secret = []byte(cfg.SigningKey)
	}
	if cfg.ExpirationHours > 0 {
		expiration = time.Duration(cfg.ExpirationHours) * time.Hour
	}
}

// GenerateToken creates a session token without family binding
func GenerateToken(kind string, subjectID uint, loginID string) (string, error) {
	return GenerateTokenWithFamily(kind, subjectID, loginID, nil, "", "", "")
}

// GenerateTokenWithFamily creates a session token bound to a family. The
// family claims let the UI render without a database round-trip; privileged
// operations still re-verify membership server-side.
func GenerateTokenWithFamily(kind string, subjectID uint, loginID string, familyID *uint, familySlug, familyName, role string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Kind:       kind,
		SubjectID:  subjectID,
		LoginID:    loginID,
		FamilyID:   familyID,
		FamilySlug: familySlug,
		FamilyName: familyName,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates and parses a session token
func ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}
