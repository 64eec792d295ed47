package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/charlesng35/proctorrelay/internal/models"
)

// MaxRoomIDLength bounds the room key so it fits the indexed column on every driver.
const MaxRoomIDLength = 191

const defaultRoomPageSize = 100

var (
	// ErrRoomNotFound indicates no room has been persisted under the requested key.
	ErrRoomNotFound = errors.New("room service: room not found")
	// ErrInvalidRoomID is returned for empty or oversized room keys.
	ErrInvalidRoomID = errors.New("room service: invalid room id")
)

// ListRoomsOptions pages through persisted rooms, newest first.
type ListRoomsOptions struct {
	Limit  int
	Offset int
}

// RoomService records which rooms have been opened. The relay never depends on it;
// persistence is a record for operators and the REST surface.
type RoomService struct {
	db *gorm.DB
}

// NewRoomService constructs a room service once a database handle is supplied.
func NewRoomService(db *gorm.DB) (*RoomService, error) {
	if db == nil {
		return nil, errors.New("room service: db is required")
	}
	return &RoomService{db: db}, nil
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// validateRoomID checks that a room key can be stored. Keys are persisted verbatim;
// surrounding whitespace is part of the key.
func validateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" || utf8.RuneCountInString(roomID) > MaxRoomIDLength {
		return ErrInvalidRoomID
	}
	return nil
}

// EnsureRoom inserts the room when it is not yet persisted and reports whether it did.
// Concurrent callers racing on the same key see exactly one creation.
func (s *RoomService) EnsureRoom(ctx context.Context, roomID string) (bool, error) {
	ctx = ensuredContext(ctx)

	if err := validateRoomID(roomID); err != nil {
		return false, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.ChatRoom{}).Where("room_id = ?", roomID).Count(&existing).Error; err != nil {
		return false, fmt.Errorf("room service: lookup room: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	if err := s.db.WithContext(ctx).Create(&models.ChatRoom{RoomID: roomID}).Error; err != nil {
		if isUniqueConstraintError(err) {
			return false, nil
		}
		return false, fmt.Errorf("room service: create room: %w", err)
	}
	return true, nil
}

// Get loads a persisted room.
func (s *RoomService) Get(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	ctx = ensuredContext(ctx)

	if err := validateRoomID(roomID); err != nil {
		return nil, err
	}

	var room models.ChatRoom
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Take(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("room service: get room: %w", err)
	}
	return &room, nil
}

// List returns persisted rooms ordered by creation time, newest first.
func (s *RoomService) List(ctx context.Context, opts ListRoomsOptions) ([]models.ChatRoom, error) {
	ctx = ensuredContext(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRoomPageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var rooms []models.ChatRoom
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("room_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("room service: list rooms: %w", err)
	}
	return rooms, nil
}

// Count returns the number of persisted rooms.
func (s *RoomService) Count(ctx context.Context) (int64, error) {
	ctx = ensuredContext(ctx)

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.ChatRoom{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("room service: count rooms: %w", err)
	}
	return total, nil
}
