package security

import (
	"net/http"
	"strings"

	"github.com/threadswap/chat-service/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CtxUserIDKey is where the validated caller identity lands in the gin
// context. Handlers read it from here and never from request parameters.
const CtxUserIDKey = "authUserID"

type Options struct {
	Secret []byte
}

// Middleware validates the bearer token and stores the subject claim as the
// caller id. Identity issuance lives in the external auth service; this
// service only verifies.
func Middleware(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, errs.ErrUnauthorized.WithDetail("missing bearer token"))
			return
		}

		claims := jwt.RegisteredClaims{}
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errs.New("unexpected signing method", "alg", t.Header["alg"])
			}
			return opts.Secret, nil
		})
		if err != nil || !parsed.Valid || claims.Subject == "" {
			abort(c, errs.ErrUnauthorized.WithDetail("invalid token"))
			return
		}

		c.Set(CtxUserIDKey, claims.Subject)
		c.Next()
	}
}

// CallerID reads the validated identity set by Middleware.
func CallerID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

func bearerToken(c *gin.Context) string {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if authz == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

func abort(c *gin.Context, err *errs.CodeError) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, err)
}
