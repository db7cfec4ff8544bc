package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"usersvc/internal/auth"
	"usersvc/internal/cache"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/logger"
	"usersvc/internal/mail"
	"usersvc/internal/model"
	"usersvc/internal/repository"
	"usersvc/internal/validation"
)

const userCacheTTL = 5 * time.Minute

// Token windows used when Options leaves them unset.
const (
	DefaultVerificationTTL = time.Hour
	DefaultResetTTL        = 10 * time.Minute
)

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username string
	Name     string
	Email    string
	Password string
	Role     string
}

// EditUserInput carries a partial update; nil fields are left unchanged.
type EditUserInput struct {
	Username *string
	Name     *string
	Email    *string
	Password *string
}

// Options configures token windows and the links placed in emails.
type Options struct {
	// PublicBaseURL prefixes emailed links, e.g. "https://example.com/api".
	PublicBaseURL   string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// UserService handles registration, verification, login, password reset and user CRUD.
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	VerifyEmail(ctx context.Context, token string) error
	LoginWithEmail(ctx context.Context, email, password string) (string, error)
	LoginWithUsername(ctx context.Context, username, password string) (string, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	GetUser(ctx context.Context, id uint) (*model.User, error)
	GetAllUsers(ctx context.Context) ([]model.User, error)
	EditUser(ctx context.Context, id uint, in EditUserInput) (*model.User, error)
}

type userService struct {
	repo     repository.UserRepository
	jwt      *auth.JWTService
	secrets  *auth.SecretHasher
	mailer   mail.Dispatcher
	cache    *cache.Client
	validate *validation.Validator
	opts     Options
	now      func() time.Time
}

// NewUserService builds a UserService. cache may be nil. Non-positive token
// windows in opts fall back to DefaultVerificationTTL and DefaultResetTTL.
func NewUserService(
	repo repository.UserRepository,
	jwtService *auth.JWTService,
	secrets *auth.SecretHasher,
	mailer mail.Dispatcher,
	cacheClient *cache.Client,
	opts Options,
) UserService {
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = DefaultVerificationTTL
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = DefaultResetTTL
	}
	return &userService{
		repo:     repo,
		jwt:      jwtService,
		secrets:  secrets,
		mailer:   mailer,
		cache:    cacheClient,
		validate: validation.NewValidator(),
		opts:     opts,
		now:      time.Now,
	}
}

// Register creates an unverified account and queues the verification email.
func (s *userService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Role == "" {
		in.Role = model.RoleUser
	}

	if err := s.validateRegistration(in); err != nil {
		return nil, err
	}

	// Check if user already exists
	_, err := s.repo.FindByEmail(ctx, in.Email)
	if err == nil {
		return nil, apperrors.ErrAlreadyExists
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, unexpected("check user existence", err)
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, unexpected("register", err)
	}

	secret, err := s.secrets.Generate(s.opts.VerificationTTL)
	if err != nil {
		return nil, unexpected("register", err)
	}

	user := &model.User{
		Username:                 in.Username,
		Name:                     in.Name,
		Email:                    in.Email,
		PasswordHash:             hashed,
		Role:                     in.Role,
		EmailVerificationDigest:  secret.Digest,
		EmailVerificationExpires: &secret.ExpiresAt,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, apperrors.ErrAlreadyExists
		}
		return nil, unexpected("create user", err)
	}

	s.dispatch(ctx, mail.VerificationMessage(user.Email, s.link("verifyEmail", secret.Raw)))
	return user, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *userService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.repo.FindByVerificationDigest(ctx, s.secrets.Digest(token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrInvalidOrExpiredToken
		}
		return unexpected("find user by verification token", err)
	}

	if !s.secrets.Matches(token, user.EmailVerificationDigest, user.EmailVerificationExpires, s.now()) {
		return apperrors.ErrInvalidOrExpiredToken
	}

	if err := s.repo.ConsumeVerificationDigest(ctx, user.ID, user.EmailVerificationDigest, map[string]interface{}{
		repository.FieldIsEmailVerified:          true,
		repository.FieldEmailVerificationDigest:  "",
		repository.FieldEmailVerificationExpires: nil,
	}); err != nil {
		if errors.Is(err, apperrors.ErrInvalidOrExpiredToken) {
			return apperrors.ErrInvalidOrExpiredToken
		}
		return unexpected("verify email", err)
	}

	s.cache.Delete(ctx, cache.UserKey(user.ID))
	return nil
}

// LoginWithEmail authenticates by email and returns an access token.
func (s *userService) LoginWithEmail(ctx context.Context, email, password string) (string, error) {
	return s.login(password, func() (*model.User, error) {
		return s.repo.FindByEmail(ctx, normalizeEmail(email))
	})
}

// LoginWithUsername authenticates by username and returns an access token.
func (s *userService) LoginWithUsername(ctx context.Context, username, password string) (string, error) {
	return s.login(password, func() (*model.User, error) {
		return s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	})
}

func (s *userService) login(password string, find func() (*model.User, error)) (string, error) {
	user, err := find()
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", apperrors.ErrNotFound
		}
		return "", unexpected("find user", err)
	}

	if !user.IsEmailVerified {
		return "", apperrors.ErrNotVerified
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return "", apperrors.ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(auth.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	if err != nil {
		return "", unexpected("generate access token", err)
	}
	return token, nil
}

// ForgotPassword issues a new reset token, replacing any earlier one, and queues the reset email.
func (s *userService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return unexpected("find user by email", err)
	}

	secret, err := s.secrets.Generate(s.opts.ResetTTL)
	if err != nil {
		return unexpected("forgot password", err)
	}

	if err := s.repo.UpdateFields(ctx, user.ID, map[string]interface{}{
		repository.FieldPasswordResetDigest:  secret.Digest,
		repository.FieldPasswordResetExpires: secret.ExpiresAt,
	}); err != nil {
		return unexpected("store reset token", err)
	}

	s.dispatch(ctx, mail.PasswordResetMessage(user.Email, s.link("resetPassword", secret.Raw)))
	return nil
}

// ResetPassword consumes a reset token and replaces the password.
func (s *userService) ResetPassword(ctx context.Context, token, password string) error {
	if err := s.validate.Var("password", password, validation.PasswordRule); err != nil {
		return err
	}

	user, err := s.repo.FindByResetDigest(ctx, s.secrets.Digest(token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrInvalidOrExpiredToken
		}
		return unexpected("find user by reset token", err)
	}

	if !s.secrets.Matches(token, user.PasswordResetDigest, user.PasswordResetExpires, s.now()) {
		return apperrors.ErrInvalidOrExpiredToken
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return unexpected("reset password", err)
	}

	if err := s.repo.ConsumeResetDigest(ctx, user.ID, user.PasswordResetDigest, map[string]interface{}{
		repository.FieldPasswordHash:         hashed,
		repository.FieldPasswordResetDigest:  "",
		repository.FieldPasswordResetExpires: nil,
	}); err != nil {
		if errors.Is(err, apperrors.ErrInvalidOrExpiredToken) {
			return apperrors.ErrInvalidOrExpiredToken
		}
		return unexpected("reset password", err)
	}

	s.cache.Delete(ctx, cache.UserKey(user.ID))
	return nil
}

// GetUser returns one user, served from cache when available.
func (s *userService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var cached model.User
	if s.cache.GetJSON(ctx, cache.UserKey(id), &cached) {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, unexpected("find user", err)
	}

	s.cache.SetJSON(ctx, cache.UserKey(id), user, userCacheTTL)
	return user, nil
}

// GetAllUsers returns every user, newest first.
func (s *userService) GetAllUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, unexpected("list users", err)
	}
	return users, nil
}

// EditUser validates and applies a partial update. A changed email address
// must be verified again, so a fresh verification email is queued for it.
func (s *userService) EditUser(ctx context.Context, id uint, in EditUserInput) (*model.User, error) {
	fields := map[string]interface{}{}
	var reverify *auth.Secret
	var newEmail string

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := s.validate.Var("username", username, validation.UsernameRule); err != nil {
			return nil, err
		}
		fields[repository.FieldUsername] = username
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := s.validate.Var("name", name, validation.NameRule); err != nil {
			return nil, err
		}
		fields[repository.FieldName] = name
	}
	if in.Password != nil {
		if err := s.validate.Var("password", *in.Password, validation.PasswordRule); err != nil {
			return nil, err
		}
		hashed, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, unexpected("edit user", err)
		}
		fields[repository.FieldPasswordHash] = hashed
	}
	if in.Email != nil {
		newEmail = normalizeEmail(*in.Email)
		if err := s.validate.Var("email", newEmail, validation.EmailRule); err != nil {
			return nil, err
		}
		fields[repository.FieldEmail] = newEmail
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", apperrors.ErrValidationFailed)
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, unexpected("find user", err)
	}

	if in.Email != nil && newEmail != current.Email {
		secret, err := s.secrets.Generate(s.opts.VerificationTTL)
		if err != nil {
			return nil, unexpected("edit user", err)
		}
		reverify = &secret
		fields[repository.FieldIsEmailVerified] = false
		fields[repository.FieldEmailVerificationDigest] = secret.Digest
		fields[repository.FieldEmailVerificationExpires] = secret.ExpiresAt
	}

	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			return nil, apperrors.ErrNotFound
		case errors.Is(err, apperrors.ErrAlreadyExists):
			return nil, apperrors.ErrAlreadyExists
		default:
			return nil, unexpected("edit user", err)
		}
	}
	s.cache.Delete(ctx, cache.UserKey(id))

	if reverify != nil {
		s.dispatch(ctx, mail.VerificationMessage(newEmail, s.link("verifyEmail", reverify.Raw)))
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, unexpected("reload user", err)
	}
	return updated, nil
}

func (s *userService) validateRegistration(in RegisterInput) error {
	checks := []struct {
		name, value, rule string
	}{
		{"username", in.Username, validation.UsernameRule},
		{"name", in.Name, validation.NameRule},
		{"email", in.Email, validation.EmailRule},
		{"password", in.Password, validation.PasswordRule},
		{"role", in.Role, "oneof=" + model.RoleUser + " " + model.RoleAdmin},
	}
	for _, c := range checks {
		if err := s.validate.Var(c.name, c.value, c.rule); err != nil {
			return err
		}
	}
	return nil
}

// dispatch hands msg to the mail queue. Failures are logged, never returned.
func (s *userService) dispatch(ctx context.Context, msg mail.Message) {
	if s.mailer == nil {
		logger.Warningf("no mail dispatcher configured; dropping %s mail to %s", msg.Kind, msg.To)
		return
	}
	if err := s.mailer.Dispatch(ctx, msg); err != nil {
		logger.Errorf("queue %s mail to %s: %v", msg.Kind, msg.To, err)
	}
}

func (s *userService) link(action, token string) string {
	return fmt.Sprintf("%s/users/%s/%s", strings.TrimRight(s.opts.PublicBaseURL, "/"), action, token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func unexpected(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrUnexpected, op, err)
}
