package auth

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/proctorrelay/internal/models"
)

var (
	// ErrIdentityNotFound indicates the token refers to an account that does not exist.
	ErrIdentityNotFound = errors.New("identity: user not found")
	// ErrIdentityInvalid is returned when the token does not carry a usable account id.
	ErrIdentityInvalid = errors.New("identity: invalid claims")
)

// Identity is the authenticated principal of a relay connection.
type Identity struct {
	UserID int64
	Type   models.UserType
}

// IdentityService resolves validated token claims against the users table.
type IdentityService struct {
	db *gorm.DB
}

// NewIdentityService constructs an IdentityService backed by db.
func NewIdentityService(db *gorm.DB) (*IdentityService, error) {
	if db == nil {
		return nil, errors.New("identity: db is required")
	}
	return &IdentityService{db: db}, nil
}

// Resolve loads the account referenced by claims and returns its id and type.
func (s *IdentityService) Resolve(ctx context.Context, claims *Claims) (Identity, error) {
	if claims == nil {
		return Identity{}, ErrIdentityInvalid
	}

	userID, err := claims.AccountID()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrIdentityInvalid, err)
	}

	var user models.User
	err = s.db.WithContext(ctx).
		Select("id", "type").
		Where("id = ?", userID).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("identity: load user: %w", err)
	}

	// An unrecognised stored type is kept as-is; CanJoinRelay refuses it downstream.
	userType, err := models.ParseUserType(string(user.Type))
	if err != nil {
		userType = user.Type
	}

	return Identity{UserID: user.ID, Type: userType}, nil
}
