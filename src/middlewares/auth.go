package middlewares

import (
	"errors"
	"log"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"vmp/src/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// AuthMiddleware accepts HS256 bearer tokens whose subject is the numeric user
// id. It sets "id" (uint) and "role" on the context.
func AuthMiddleware(jwtKey []byte) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		bearerToken := ctx.Request.Header.Get("Authorization")
		reqToken, ok := strings.CutPrefix(bearerToken, "Bearer ")
		if !ok || strings.TrimSpace(reqToken) == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthorized"})
			return
		}
		claims := &types.Claims{}
		tkn, err := jwt.ParseWithClaims(strings.TrimSpace(reqToken), claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return jwtKey, nil
		})
		if err != nil || !tkn.Valid {
			if err != nil {
				log.Printf("token error: %s\n", err.Error())
			}
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
			return
		}

		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil || uid == 0 {
			log.Printf("error parsing claims subject %q\n", claims.Subject)
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
			return
		}
		role := claims.Role
		if role == "" {
			role = string(types.ROLE_BUYER)
		}
		ctx.Set("id", uint(uid))
		ctx.Set("role", role)
	}
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...types.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		role := types.Role(ctx.GetString("role"))
		if !slices.Contains(roles, role) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": types.ErrForbidden.Error(), "code": "forbidden"})
			return
		}
	}
}
