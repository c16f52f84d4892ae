package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"partyserver/models"
)

// 部分ユニークインデックスは gorm のタグで表現できないため SQL で作成します。
// Both PostgreSQL and SQLite accept this syntax.
var partialIndexes = []struct {
	name string
	sql  string
}{
	{
		name: "idx_rooms_live_host",
		sql:  "CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_live_host ON rooms (host_user_id) WHERE status IN ('WAITING', 'ACTIVE')",
	},
	{
		name: "idx_participants_active",
		sql:  "CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_active ON participants (room_id, user_id) WHERE status = 'ACTIVE'",
	},
}

// Migrate creates or updates the rooms and participants tables.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&models.Room{}, &models.Participant{}); err != nil {
		logger.Error("Error migrating tables", zap.Error(err))
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, idx := range partialIndexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			logger.Error("Error creating index", zap.String("index", idx.name), zap.Error(err))
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	logger.Info("Database migrated successfully")
	return nil
}
