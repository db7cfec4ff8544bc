package router

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"usersvc/internal/auth"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/handler"
	"usersvc/internal/validation"
)

// Register wires routes and middleware.
func Register(e *echo.Echo, jwtService *auth.JWTService, userHandler *handler.UserHandler) {
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Validator = validation.NewValidator()

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")

	// Public routes
	api.POST("/users/register", userHandler.Register)
	api.POST("/users/loginWithEmail", userHandler.LoginWithEmail)
	api.POST("/users/loginWithUsername", userHandler.LoginWithUsername)
	api.GET("/users/verifyEmail/:token", userHandler.VerifyEmail)
	api.POST("/users/forgotPassword", userHandler.ForgotPassword)
	api.POST("/users/resetPassword/:token", userHandler.ResetPassword)

	// Secured routes (require JWT authentication)
	secured := api.Group("", echojwt.WithConfig(JWTConfig(jwtService)))
	secured.GET("/users/me", userHandler.Me)
	secured.GET("/users", userHandler.GetUsers)
	secured.GET("/users/:id", userHandler.GetUser)
	secured.PATCH("/users/:id", userHandler.EditUser)
}

// JWTConfig validates bearer tokens with jwtService and stores the resulting
// *auth.Claims under handler.ClaimsContextKey.
func JWTConfig(jwtService *auth.JWTService) echojwt.Config {
	return echojwt.Config{
		ContextKey:  handler.ClaimsContextKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return jwtService.ValidateToken(token)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
				Error: "missing, invalid or expired token",
				Code:  "UNAUTHORIZED",
			})
		},
	}
}
