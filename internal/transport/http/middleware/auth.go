package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/requestid"
)

const errUnauthorized = "Unauthorized"

// ActorKey is the gin context key Auth stores the resolved ActorContext
// under; handlers read it via ActorFromContext.
const ActorKey = "actor"

// ActorFromContext returns the ActorContext Auth attached to c, or the zero
// value if Auth never ran.
func ActorFromContext(c *gin.Context) domain.ActorContext {
	v, ok := c.Get(ActorKey)
	if !ok {
		return domain.ActorContext{}
	}
	actor, _ := v.(domain.ActorContext)
	return actor
}

// Auth validates a Bearer JWT and attaches the resulting ActorContext to the
// gin context. When jwksURL is non-empty the token is verified against the
// JWKS endpoint (RS256); otherwise hmacKey backs HS256 verification for
// local dev. Must run after RequestID, since the actor's trace_id is the
// request id.
func Auth(jwksURL string, hmacKey []byte) gin.HandlerFunc {
	var cache *jwk.Cache
	if jwksURL != "" {
		c := jwk.NewCache(context.Background())
		if err := c.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			panic("jwk cache register: " + err.Error())
		}
		cache = c
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}
		rawToken := strings.TrimPrefix(header, "Bearer ")

		var (
			actorID        string
			actorTypeClaim string
			privilegeLevel string
			autonomyLevel  string
		)

		if cache != nil {
			keySet, fetchErr := cache.Get(c.Request.Context(), jwksURL)
			if fetchErr != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			tok, err := jwxjwt.Parse([]byte(rawToken), jwxjwt.WithKeySet(keySet), jwxjwt.WithValidate(true))
			if err != nil || tok == nil || tok.Subject() == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			actorID = tok.Subject()
			actorTypeClaim, _ = stringClaim(tok, "actor_type")
			privilegeLevel, _ = stringClaim(tok, "privilege_level")
			autonomyLevel, _ = stringClaim(tok, "autonomy_level")
		} else {
			tok, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return hmacKey, nil
			})
			if err != nil || !tok.Valid {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			actorID = sub
			actorTypeClaim, _ = claims["actor_type"].(string)
			privilegeLevel, _ = claims["privilege_level"].(string)
			autonomyLevel, _ = claims["autonomy_level"].(string)
		}

		actorType := domain.ActorHuman
		if actorTypeClaim == string(domain.ActorAgent) {
			actorType = domain.ActorAgent
		}
		if privilegeLevel == "" {
			privilegeLevel = "unconstrained"
		}
		if autonomyLevel == "" {
			autonomyLevel = "full"
		}

		actor := domain.ActorContext{
			ActorType:      actorType,
			ActorID:        &actorID,
			Channel:        "http",
			PrivilegeLevel: privilegeLevel,
			AutonomyLevel:  autonomyLevel,
			TraceID:        requestid.FromContext(c.Request.Context()),
		}
		c.Set(ActorKey, actor)
		c.Next()
	}
}

func stringClaim(tok jwxjwt.Token, name string) (string, bool) {
	v, ok := tok.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
