package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usersvc/internal/auth"
	"usersvc/internal/db"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/mail"
	"usersvc/internal/model"
	"usersvc/internal/repository"
)

// outbox records dispatched messages instead of delivering them.
type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Dispatch(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last(t *testing.T) mail.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no mail dispatched")
	return o.sent[len(o.sent)-1]
}

func newFlowService(t *testing.T) (*userService, *outbox, repository.UserRepository) {
	t.Helper()
	return newFlowServiceWith(t, nil)
}

// newFlowServiceWith lets wrap decorate the sqlite repository handed to the service.
func newFlowServiceWith(t *testing.T, wrap func(repository.UserRepository) repository.UserRepository) (*userService, *outbox, repository.UserRepository) {
	t.Helper()
	gormDB, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB, false))

	repo := repository.NewUserRepository(gormDB)
	svcRepo := repo
	if wrap != nil {
		svcRepo = wrap(repo)
	}
	box := &outbox{}
	jwtService := auth.NewJWTService("flow-secret", time.Hour)
	svc := NewUserService(svcRepo, jwtService, auth.NewSecretHasher(), box, nil, testOptions).(*userService)
	return svc, box, repo
}

func TestUserFlow_RegisterVerifyLogin(t *testing.T) {
	ctx := context.Background()
	svc, box, repo := newFlowService(t)

	user, err := svc.Register(ctx, RegisterInput{
		Username: "alice", Name: "Alice A", Email: "alice@x.com", Password: "Secret123",
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", stored.PasswordHash)
	assert.False(t, stored.IsEmailVerified)

	_, err = svc.LoginWithEmail(ctx, "alice@x.com", "Secret123")
	assert.ErrorIs(t, err, apperrors.ErrNotVerified)

	msg := box.last(t)
	assert.Equal(t, "alice@x.com", msg.To)
	token := tokenFromBody(t, msg.Body, "/verifyEmail/")
	assert.NotEqual(t, stored.EmailVerificationDigest, token)

	require.NoError(t, svc.VerifyEmail(ctx, token))
	assert.ErrorIs(t, svc.VerifyEmail(ctx, token), apperrors.ErrInvalidOrExpiredToken)

	accessToken, err := svc.LoginWithEmail(ctx, "alice@x.com", "Secret123")
	require.NoError(t, err)
	claims, err := svc.jwt.ValidateToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	_, err = svc.LoginWithUsername(ctx, "alice", "Secret123")
	assert.NoError(t, err)

	_, err = svc.LoginWithEmail(ctx, "alice@x.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserFlow_DuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFlowService(t)

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Name: "Alice", Email: "alice@x.com", Password: "Secret123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice2", Name: "Alice", Email: "ALICE@x.com", Password: "Secret123"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Name: "Other", Email: "other@x.com", Password: "Secret123"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestUserFlow_VerificationTokenExpires(t *testing.T) {
	ctx := context.Background()
	svc, box, _ := newFlowService(t)

	_, err := svc.Register(ctx, RegisterInput{Username: "carol", Name: "Carol", Email: "carol@x.com", Password: "Secret123"})
	require.NoError(t, err)
	token := tokenFromBody(t, box.last(t).Body, "/verifyEmail/")

	svc.now = func() time.Time { return time.Now().Add(testOptions.VerificationTTL + time.Minute) }
	assert.ErrorIs(t, svc.VerifyEmail(ctx, token), apperrors.ErrInvalidOrExpiredToken)
}

func TestUserFlow_ForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	svc, box, _ := newFlowService(t)

	_, err := svc.Register(ctx, RegisterInput{Username: "bob", Name: "Bob", Email: "bob@x.com", Password: "Secret123"})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, tokenFromBody(t, box.last(t).Body, "/verifyEmail/")))

	require.NoError(t, svc.ForgotPassword(ctx, "bob@x.com"))
	first := tokenFromBody(t, box.last(t).Body, "/resetPassword/")

	// a second request replaces the first token
	require.NoError(t, svc.ForgotPassword(ctx, "bob@x.com"))
	second := tokenFromBody(t, box.last(t).Body, "/resetPassword/")
	assert.NotEqual(t, first, second)
	assert.ErrorIs(t, svc.ResetPassword(ctx, first, "NewPass456"), apperrors.ErrInvalidOrExpiredToken)

	require.NoError(t, svc.ResetPassword(ctx, second, "NewPass456"))
	assert.ErrorIs(t, svc.ResetPassword(ctx, second, "Another789"), apperrors.ErrInvalidOrExpiredToken)

	_, err = svc.LoginWithEmail(ctx, "bob@x.com", "Secret123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = svc.LoginWithEmail(ctx, "bob@x.com", "NewPass456")
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.ForgotPassword(ctx, "nobody@x.com"), apperrors.ErrNotFound)
}

func TestUserFlow_EditEmailRequiresVerification(t *testing.T) {
	ctx := context.Background()
	svc, box, _ := newFlowService(t)

	user, err := svc.Register(ctx, RegisterInput{Username: "dave", Name: "Dave", Email: "dave@x.com", Password: "Secret123"})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, tokenFromBody(t, box.last(t).Body, "/verifyEmail/")))

	email := "dave@y.com"
	updated, err := svc.EditUser(ctx, user.ID, EditUserInput{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.False(t, updated.IsEmailVerified)

	_, err = svc.LoginWithEmail(ctx, email, "Secret123")
	assert.ErrorIs(t, err, apperrors.ErrNotVerified)

	msg := box.last(t)
	assert.Equal(t, email, msg.To)
	require.NoError(t, svc.VerifyEmail(ctx, tokenFromBody(t, msg.Body, "/verifyEmail/")))

	_, err = svc.LoginWithEmail(ctx, email, "Secret123")
	assert.NoError(t, err)

	users, err := svc.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

// interleavingRepo runs during once, right after the first digest lookup
// returns, so a second consumer races the first one on the same token.
type interleavingRepo struct {
	repository.UserRepository
	fired  bool
	during func()
}

func (r *interleavingRepo) afterLookup() {
	if !r.fired && r.during != nil {
		r.fired = true
		r.during()
	}
}

func (r *interleavingRepo) FindByResetDigest(ctx context.Context, digest string) (*model.User, error) {
	user, err := r.UserRepository.FindByResetDigest(ctx, digest)
	r.afterLookup()
	return user, err
}

func (r *interleavingRepo) FindByVerificationDigest(ctx context.Context, digest string) (*model.User, error) {
	user, err := r.UserRepository.FindByVerificationDigest(ctx, digest)
	r.afterLookup()
	return user, err
}

func TestUserFlow_ResetTokenSpentOnceUnderInterleaving(t *testing.T) {
	ctx := context.Background()
	racing := &interleavingRepo{}
	svc, box, _ := newFlowServiceWith(t, func(r repository.UserRepository) repository.UserRepository {
		racing.UserRepository = r
		return racing
	})

	_, err := svc.Register(ctx, RegisterInput{Username: "erin", Name: "Erin", Email: "erin@x.com", Password: "Secret123"})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, tokenFromBody(t, box.last(t).Body, "/verifyEmail/")))
	require.NoError(t, svc.ForgotPassword(ctx, "erin@x.com"))
	token := tokenFromBody(t, box.last(t).Body, "/resetPassword/")

	racing.fired = false
	var innerErr error
	racing.during = func() { innerErr = svc.ResetPassword(ctx, token, "Attacker111") }
	outerErr := svc.ResetPassword(ctx, token, "NewPass456")

	require.NoError(t, innerErr)
	assert.ErrorIs(t, outerErr, apperrors.ErrInvalidOrExpiredToken)

	_, err = svc.LoginWithEmail(ctx, "erin@x.com", "Attacker111")
	assert.NoError(t, err)
	_, err = svc.LoginWithEmail(ctx, "erin@x.com", "NewPass456")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserFlow_VerificationTokenSpentOnceUnderInterleaving(t *testing.T) {
	ctx := context.Background()
	racing := &interleavingRepo{}
	svc, box, _ := newFlowServiceWith(t, func(r repository.UserRepository) repository.UserRepository {
		racing.UserRepository = r
		return racing
	})

	_, err := svc.Register(ctx, RegisterInput{Username: "frank", Name: "Frank", Email: "frank@x.com", Password: "Secret123"})
	require.NoError(t, err)
	token := tokenFromBody(t, box.last(t).Body, "/verifyEmail/")

	var innerErr error
	racing.during = func() { innerErr = svc.VerifyEmail(ctx, token) }
	outerErr := svc.VerifyEmail(ctx, token)

	require.NoError(t, innerErr)
	assert.ErrorIs(t, outerErr, apperrors.ErrInvalidOrExpiredToken)
}
