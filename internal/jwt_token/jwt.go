package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	authmw "lineage/pkg/platform/middleware/auth"
)

// Claims are the access-token claims lineage understands. Roles apply to the
// listed towns and trees; super_admin applies everywhere.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
	Towns  []string `json:"towns,omitempty"`
	Trees  []string `json:"trees,omitempty"`
	jwt.RegisteredClaims
}

// JWTService issues and validates HS256 access tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken signs a token for the given principal.
func (s *JWTService) GenerateAccessToken(principal authmw.Claims, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: principal.UserID.String(),
		Roles:  principal.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	}
	for _, town := range principal.Towns {
		claims.Towns = append(claims.Towns, town.String())
	}
	for _, tree := range principal.Trees {
		claims.Trees = append(claims.Trees, tree.String())
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// ValidateToken verifies signature, expiry, issuer and audience and converts
// the claims into middleware claims with typed identifiers.
func (s *JWTService) ValidateToken(tokenString string) (*authmw.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return toMiddlewareClaims(claims)
}

func toMiddlewareClaims(claims *Claims) (*authmw.Claims, error) {
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token subject")
	}
	out := &authmw.Claims{UserID: userID, Roles: claims.Roles, JTI: claims.ID}
	for _, raw := range claims.Towns {
		town, err := id.ParseTownID(raw)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid town claim")
		}
		out.Towns = append(out.Towns, town)
	}
	for _, raw := range claims.Trees {
		tree, err := id.ParseTreeID(raw)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid tree claim")
		}
		out.Trees = append(out.Trees, tree)
	}
	return out, nil
}
