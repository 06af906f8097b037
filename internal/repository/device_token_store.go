package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyberwizD/fcm-push-dispatcher/internal/models"
)

// DeviceToken is a row of the device token table.
type DeviceToken struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	Token     string `gorm:"uniqueIndex;not null"`
	Platform  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceTokenStore resolves users to their registered devices.
type DeviceTokenStore struct {
	db        *gorm.DB
	tableName string
}

func NewDeviceTokenStore(db *gorm.DB, tableName string) *DeviceTokenStore {
	if tableName == "" {
		tableName = "device_tokens"
	}
	return &DeviceTokenStore{
		db:        db,
		tableName: tableName,
	}
}

// Migrate creates or updates the device token table.
func (s *DeviceTokenStore) Migrate() error {
	return s.db.Table(s.tableName).AutoMigrate(&DeviceToken{})
}

// Lookup returns the devices of a user in registration order.
func (s *DeviceTokenStore) Lookup(ctx context.Context, userID string) ([]models.DeviceTarget, error) {
	var rows []DeviceToken
	err := s.db.WithContext(ctx).Table(s.tableName).
		Select("token", "platform").
		Where("user_id = ?", userID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.tableName, err)
	}

	targets := make([]models.DeviceTarget, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, models.DeviceTarget{
			RegistrationID: row.Token,
			Platform:       models.ParsePlatform(row.Platform),
		})
	}
	return targets, nil
}

// Register stores a device for a user. A token already known is moved to
// the new user and platform.
func (s *DeviceTokenStore) Register(ctx context.Context, userID, token string, platform models.Platform) error {
	row := DeviceToken{
		UserID:   userID,
		Token:    token,
		Platform: string(platform),
	}
	return s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
		}).Create(&row).Error
}
