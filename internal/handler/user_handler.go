package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"usersvc/internal/auth"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/logger"
	"usersvc/internal/model"
	"usersvc/internal/service"
)

// ClaimsContextKey is where the JWT middleware stores the caller's *auth.Claims.
const ClaimsContextKey = "user"

// UserHandler handles account and user endpoints.
type UserHandler struct {
	svc service.UserService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Response is the success envelope of every endpoint.
type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,username"`
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// EmailLoginRequest represents a login by email.
type EmailLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UsernameLoginRequest represents a login by username.
type UsernameLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
}

// ForgotPasswordRequest represents a password reset link request.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest carries the replacement password.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// EditUserRequest is a partial update; omitted fields are left unchanged.
type EditUserRequest struct {
	Username *string `json:"username,omitempty"`
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// Register godoc
// @Summary Register a new user
// @Tags users
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/register [post]
func (h *UserHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.svc.Register(c.Request().Context(), service.RegisterInput{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, Response{Message: "User registered successfully", Data: user})
}

// VerifyEmail godoc
// @Summary Verify an email address
// @Tags users
// @Produce json
// @Param token path string true "Verification token"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/verifyEmail/{token} [get]
func (h *UserHandler) VerifyEmail(c echo.Context) error {
	if err := h.svc.VerifyEmail(c.Request().Context(), c.Param("token")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, Response{Message: "Email verified successfully"})
}

// LoginWithEmail godoc
// @Summary Login with email and password
// @Tags users
// @Accept json
// @Produce json
// @Param request body EmailLoginRequest true "Login credentials"
// @Success 200 {object} Response{data=LoginResponse}
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/loginWithEmail [post]
func (h *UserHandler) LoginWithEmail(c echo.Context) error {
	var req EmailLoginRequest
	if err := c.Bind(&req); err != nil {
		return loginFailed(err)
	}
	if err := c.Validate(&req); err != nil {
		return loginFailed(err)
	}

	token, err := h.svc.LoginWithEmail(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return loginFailed(err)
	}
	return c.JSON(http.StatusOK, Response{Message: "Login successfully", Data: LoginResponse{AccessToken: token}})
}

// LoginWithUsername godoc
// @Summary Login with username and password
// @Tags users
// @Accept json
// @Produce json
// @Param request body UsernameLoginRequest true "Login credentials"
// @Success 200 {object} Response{data=LoginResponse}
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/loginWithUsername [post]
func (h *UserHandler) LoginWithUsername(c echo.Context) error {
	var req UsernameLoginRequest
	if err := c.Bind(&req); err != nil {
		return loginFailed(err)
	}
	if err := c.Validate(&req); err != nil {
		return loginFailed(err)
	}

	token, err := h.svc.LoginWithUsername(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return loginFailed(err)
	}
	return c.JSON(http.StatusOK, Response{Message: "Login successfully", Data: LoginResponse{AccessToken: token}})
}

// ForgotPassword godoc
// @Summary Request a password reset link
// @Tags users
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Account email"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/forgotPassword [post]
func (h *UserHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	failed := echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
		Error: "unable to send password reset link",
		Code:  "RESET_LINK_FAILED",
	})
	if err := c.Bind(&req); err != nil {
		return failed
	}
	if err := c.Validate(&req); err != nil {
		return failed
	}

	if err := h.svc.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		logger.Debugf("forgot password for %s: %v", req.Email, err)
		return failed
	}
	return c.JSON(http.StatusOK, Response{Message: "Password reset link sent to your email"})
}

// ResetPassword godoc
// @Summary Reset a password with an emailed token
// @Tags users
// @Accept json
// @Produce json
// @Param token path string true "Reset token"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Router /users/resetPassword/{token} [post]
func (h *UserHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.svc.ResetPassword(c.Request().Context(), c.Param("token"), req.Password); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, Response{Message: "Password updated successfully"})
}

// GetUser godoc
// @Summary Get user by id
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} Response{data=model.User}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	user, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, Response{Message: "User retrieved successfully", Data: user})
}

// GetUsers godoc
// @Summary List users, newest first
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]model.User}
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users [get]
func (h *UserHandler) GetUsers(c echo.Context) error {
	users, err := h.svc.GetAllUsers(c.Request().Context())
	if err != nil {
		logger.Errorf("list users: %v", err)
		return echo.NewHTTPError(http.StatusNotFound, apperrors.ErrorResponse{
			Error: "users not found",
			Code:  "USERS_NOT_FOUND",
		})
	}
	return c.JSON(http.StatusOK, Response{Message: "Users retrieved successfully", Data: users})
}

// EditUser godoc
// @Summary Update a user
// @Description Callers may edit their own account; admins may edit any account.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body EditUserRequest true "Fields to change"
// @Success 200 {object} Response{data=model.User}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id} [patch]
func (h *UserHandler) EditUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	claims, ok := CurrentClaims(c)
	if !ok {
		return httpError(apperrors.ErrInvalidToken)
	}
	if claims.UserID != id && claims.Role != model.RoleAdmin {
		return httpError(apperrors.ErrForbidden)
	}

	var req EditUserRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody()
	}

	user, err := h.svc.EditUser(c.Request().Context(), id, service.EditUserInput{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, Response{Message: "User updated successfully", Data: user})
}

// Me godoc
// @Summary Claims of the authenticated caller
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=auth.Identity}
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	claims, ok := CurrentClaims(c)
	if !ok {
		return httpError(apperrors.ErrInvalidToken)
	}
	return c.JSON(http.StatusOK, Response{Message: "User retrieved successfully", Data: claims.Identity})
}

// CurrentClaims returns the claims the JWT middleware stored on c.
func CurrentClaims(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(ClaimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return invalidBody()
	}
	if err := c.Validate(req); err != nil {
		return httpError(err)
	}
	return nil
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
			Error: "invalid id",
			Code:  "INVALID_ID",
		})
	}
	return uint(id), nil
}

func invalidBody() error {
	return echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
		Error: "invalid request body",
		Code:  "INVALID_REQUEST",
	})
}

// loginFailed hides which check failed; the cause is only logged.
func loginFailed(err error) error {
	if errors.Is(err, apperrors.ErrUnexpected) {
		logger.Errorf("login: %v", err)
	} else {
		logger.Debugf("login rejected: %v", err)
	}
	return echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
		Error: "unable to login",
		Code:  "LOGIN_FAILED",
	})
}

func httpError(err error) error {
	mapped := apperrors.MapErrorToHTTP(err)
	if mapped.StatusCode >= http.StatusInternalServerError {
		logger.Errorf("request failed: %v", err)
	}
	return echo.NewHTTPError(mapped.StatusCode, mapped.ToErrorResponse())
}
