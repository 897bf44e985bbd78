package middleware // middleware holds the Echo middleware shared by every route group

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/student-hostel-booking/internal/model"
    "github.com/iliyamo/student-hostel-booking/internal/utils"
)

// Context keys set by JWTAuth.
const (
    CtxUserID = "user_id" // uint64
    CtxRole   = "role"    // string
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the caller's ID and role into the request context.  Handlers
// read them back with c.Get(CtxUserID) and c.Get(CtxRole).
//
// Missing or invalid tokens are answered with 401 and the
// authentication_required code, which clients treat as "sign in again".
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return unauthorized(c, "missing bearer token")
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return unauthorized(c, "invalid token")
            }
            uid, _ := claims.UserID() // already validated by ParseAccessToken

            c.Set(CtxUserID, uid)
            c.Set(CtxRole, claims.Role)
            return next(c)
        }
    }
}

func unauthorized(c echo.Context, msg string) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{
        "error": msg,
        "code":  model.CodeAuthenticationRequired,
    })
}
