package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/delivery-orders/internal/domain/auth"
)

// ErrUnauthenticated is returned when a request carries no valid token.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is the token payload issued by the identity provider.
type Claims struct {
	Role        string   `json:"role"`
	Restaurants []string `json:"restaurants,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens and resolves them to a
// principal.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a TokenVerifier. An empty issuer accepts tokens
// from any issuer.
func NewTokenVerifier(secret []byte, issuer string) (*TokenVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	return &TokenVerifier{secret: secret, issuer: issuer}, nil
}

// Verify parses token and returns the principal it names.
func (v *TokenVerifier) Verify(token string) (auth.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return auth.Principal{}, errors.Wrap(ErrUnauthenticated, err.Error())
	}

	p := auth.Principal{
		UserID:             claims.Subject,
		Role:               auth.Role(claims.Role),
		OwnedRestaurantIDs: claims.Restaurants,
	}
	if p.UserID == "" {
		return auth.Principal{}, errors.Wrap(ErrUnauthenticated, "token has no subject")
	}
	if p.Role == "" {
		p.Role = auth.RoleUser
	}
	if !p.Role.Valid() {
		return auth.Principal{}, errors.Wrapf(ErrUnauthenticated, "unknown role %q", p.Role)
	}
	return p, nil
}

// Issue signs a token for p valid for ttl.
func (v *TokenVerifier) Issue(p auth.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:        string(p.Role),
		Restaurants: p.OwnedRestaurantIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// bearerToken extracts the token from the Authorization header. Browsers
// cannot set headers on a websocket upgrade, so the access_token query
// parameter is accepted as well.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("access_token")
}

// authenticate resolves the caller and stores it in the request context.
func (h *Handler) authenticate(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		abortWithError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}
	p, err := h.verifier.Verify(token)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "invalid token")
		return
	}
	c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
	c.Next()
}

// requireStaff lets only admins and restaurant owners through.
func requireStaff(c *gin.Context) {
	p := principal(c)
	if !p.IsAdmin() && !p.IsOwner() {
		abortWithError(c, http.StatusForbidden, "forbidden")
		return
	}
	c.Next()
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.FromContext(c.Request.Context())
	return p
}
