package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"order-service/internal/bucketing"
	"order-service/internal/models"
)

var (
	ErrEmailTaken = errors.New("email already registered")
	ErrPhoneTaken = errors.New("phone number already registered")
)

// UserRepository persists provisioned accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	EmailInUse(ctx context.Context, email string) (bool, error)
	PhoneInUse(ctx context.Context, phone int64) (bool, error)
}

type userRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.Manager
	logger    *zap.Logger
}

func NewUserRepository(client *ScyllaClient, bm *bucketing.Manager, logger *zap.Logger) UserRepository {
	return &userRepository{client: client, bucketing: bm, logger: logger}
}

// CreateUser claims the email and phone lookup rows with LWT inserts before
// writing the user row. Two concurrent provisions of the same identity race
// on the claim; the loser gets ErrEmailTaken/ErrPhoneTaken and writes
// nothing.
func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.UserBucket = r.bucketing.UserBucket(user.UserID)
	now := time.Now().UTC()

	applied, err := r.applyClaim(ctx, stmtClaimEmail, user.Email, user.UserBucket, user.UserID, now)
	if err != nil {
		return fmt.Errorf("failed to claim email: %w", err)
	}
	if !applied {
		return ErrEmailTaken
	}

	applied, err = r.applyClaim(ctx, stmtClaimPhone, user.PhoneNumber, user.UserBucket, user.UserID, now)
	if err != nil || !applied {
		// Roll the email claim back so the identity stays provisionable.
		if delErr := r.client.Session.Query(stmtReleaseEmail, user.Email).WithContext(ctx).Exec(); delErr != nil {
			r.logger.Error("failed to release email claim after phone conflict",
				zap.Error(delErr))
		}
		if err != nil {
			return fmt.Errorf("failed to claim phone: %w", err)
		}
		return ErrPhoneTaken
	}

	err = r.client.Session.Query(stmtCreateUser,
		user.UserBucket, user.UserID, user.Email, user.PhoneNumber,
		user.PasswordHash, user.ReferralCode, user.IsAdmin, user.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	r.logger.Info("User provisioned",
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))
	return nil
}

func (r *userRepository) applyClaim(ctx context.Context, stmt string, args ...interface{}) (bool, error) {
	applied, err := r.client.Session.Query(stmt, args...).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var bucket int
	var userID string
	err := r.client.Session.Query(stmtLookupEmail, email).
		WithContext(ctx).Scan(&bucket, &userID)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return r.getUser(ctx, bucket, userID)
}

func (r *userRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return r.getUser(ctx, r.bucketing.UserBucket(userID), userID)
}

func (r *userRepository) getUser(ctx context.Context, bucket int, userID string) (*models.User, error) {
	var u models.User
	err := r.client.Session.Query(stmtGetUserByID, bucket, userID).
		WithContext(ctx).Scan(
		&u.UserBucket, &u.UserID, &u.Email, &u.PhoneNumber,
		&u.PasswordHash, &u.ReferralCode, &u.IsAdmin, &u.CreatedAt,
	)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) EmailInUse(ctx context.Context, email string) (bool, error) {
	var bucket int
	var userID string
	err := r.client.Session.Query(stmtLookupEmail, email).
		WithContext(ctx).Scan(&bucket, &userID)
	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up email: %w", err)
	}
	return true, nil
}

func (r *userRepository) PhoneInUse(ctx context.Context, phone int64) (bool, error) {
	var bucket int
	var userID string
	err := r.client.Session.Query(stmtLookupPhone, phone).
		WithContext(ctx).Scan(&bucket, &userID)
	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up phone: %w", err)
	}
	return true, nil
}
