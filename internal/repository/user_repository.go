package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "usersvc/internal/errors"
	"usersvc/internal/model"
)

// Column names accepted by UpdateFields.
const (
	FieldUsername                 = "username"
	FieldName                     = "name"
	FieldEmail                    = "email"
	FieldPasswordHash             = "password_hash"
	FieldRole                     = "role"
	FieldIsEmailVerified          = "is_email_verified"
	FieldEmailVerificationDigest  = "email_verification_digest"
	FieldEmailVerificationExpires = "email_verification_expires"
	FieldPasswordResetDigest      = "password_reset_digest"
	FieldPasswordResetExpires     = "password_reset_expires"
)

var updatableFields = map[string]struct{}{
	FieldUsername:                 {},
	FieldName:                     {},
	FieldEmail:                    {},
	FieldPasswordHash:             {},
	FieldRole:                     {},
	FieldIsEmailVerified:          {},
	FieldEmailVerificationDigest:  {},
	FieldEmailVerificationExpires: {},
	FieldPasswordResetDigest:      {},
	FieldPasswordResetExpires:     {},
}

// UserRepository defines persistence operations.
// Lookups return errors.ErrNotFound when no record matches and
// writes return errors.ErrAlreadyExists on unique index violations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByVerificationDigest(ctx context.Context, digest string) (*model.User, error)
	FindByResetDigest(ctx context.Context, digest string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	// ConsumeVerificationDigest applies fields only while the stored verification digest
	// still equals digest, and returns errors.ErrInvalidOrExpiredToken otherwise.
	ConsumeVerificationDigest(ctx context.Context, id uint, digest string, fields map[string]interface{}) error
	// ConsumeResetDigest is ConsumeVerificationDigest for the password reset digest.
	ConsumeResetDigest(ctx context.Context, id uint, digest string, fields map[string]interface{}) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *userRepository) FindByVerificationDigest(ctx context.Context, digest string) (*model.User, error) {
	if digest == "" {
		return nil, apperrors.ErrNotFound
	}
	return r.findOne(ctx, "email_verification_digest = ?", digest)
}

func (r *userRepository) FindByResetDigest(ctx context.Context, digest string) (*model.User, error) {
	if digest == "" {
		return nil, apperrors.ErrNotFound
	}
	return r.findOne(ctx, "password_reset_digest = ?", digest)
}

// List returns all users, newest first.
func (r *userRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

// UpdateFields applies a single-statement update to one user.
func (r *userRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := checkFields(id, fields); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *userRepository) ConsumeVerificationDigest(ctx context.Context, id uint, digest string, fields map[string]interface{}) error {
	return r.consume(ctx, id, FieldEmailVerificationDigest, digest, fields)
}

func (r *userRepository) ConsumeResetDigest(ctx context.Context, id uint, digest string, fields map[string]interface{}) error {
	return r.consume(ctx, id, FieldPasswordResetDigest, digest, fields)
}

// consume is a compare-and-set on column; of two concurrent consumers only one matches.
func (r *userRepository) consume(ctx context.Context, id uint, column, digest string, fields map[string]interface{}) error {
	if digest == "" {
		return apperrors.ErrInvalidOrExpiredToken
	}
	if err := checkFields(id, fields); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Where(column+" = ?", digest).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrInvalidOrExpiredToken
	}
	return nil
}

func checkFields(id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return fmt.Errorf("update user %d: no fields", id)
	}
	for name := range fields {
		if _, ok := updatableFields[name]; !ok {
			return fmt.Errorf("update user %d: unknown field %q", id, name)
		}
	}
	return nil
}

func (r *userRepository) findOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// translate maps gorm errors onto the service error taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.ErrAlreadyExists
	default:
		return err
	}
}
