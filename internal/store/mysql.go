package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mgpai22/bilingo/internal/subtitle"
)

// MySQLStore keeps tracks in a shared MySQL database through gorm.
type MySQLStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// OpenMySQL connects with a go-sql-driver DSN such as
// "user:pass@tcp(host:3306)/bilingo?charset=utf8mb4&parseTime=True&loc=Local".
func OpenMySQL(ctx context.Context, dsn string, timeout time.Duration) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, persistenceError("open", "", fmt.Errorf("failed to connect database with GORM: %w", err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, persistenceError("open", "", err)
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxLifetime(time.Hour)

	migrateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.WithContext(migrateCtx).AutoMigrate(&videoRow{}, &cueRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, persistenceError("migrate", "", err)
	}

	return &MySQLStore{db: db, timeout: timeout}, nil
}

func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) UpsertTrack(ctx context.Context, track subtitle.Track) (int, error) {
	if err := checkTrack(track); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	video := videoRow{
		VideoID:       track.VideoID,
		LangPrimary:   track.LangPrimary,
		LangSecondary: track.LangSecondary,
		CueCount:      track.Len(),
		UpdatedAt:     now,
	}
	rows := make([]cueRow, 0, track.Len())
	for _, cue := range track.Cues {
		rows = append(rows, newCueRow(track.VideoID, cue, now))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&video).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "video_id"}, {Name: "seq"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"start_time", "end_time", "en_text", "zh_text", "degraded", "updated_at",
			}),
		}).CreateInBatches(rows, 200).Error; err != nil {
			return err
		}
		return tx.Where("video_id = ? AND seq > ?", track.VideoID, track.Len()).
			Delete(&cueRow{}).Error
	})
	if err != nil {
		return 0, persistenceError("upsert", track.VideoID, err)
	}
	return track.Len(), nil
}

func (s *MySQLStore) LoadTrack(ctx context.Context, videoID string) (subtitle.Track, error) {
	if err := checkVideoID(videoID); err != nil {
		return subtitle.Track{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		video videoRow
		rows  []cueRow
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).First(&video).Error; err != nil &&
			!errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Where("video_id = ?", videoID).Order("seq ASC").Find(&rows).Error
	})
	if err != nil {
		return subtitle.Track{}, persistenceError("load", videoID, err)
	}
	if len(rows) == 0 {
		return subtitle.Track{}, notFound(videoID)
	}

	track := subtitle.Track{
		VideoID:       videoID,
		LangPrimary:   video.LangPrimary,
		LangSecondary: video.LangSecondary,
		Cues:          make([]subtitle.Cue, 0, len(rows)),
	}
	for _, row := range rows {
		cue, err := row.cue()
		if err != nil {
			return subtitle.Track{}, persistenceError("load", videoID, err)
		}
		track.Cues = append(track.Cues, cue)
	}
	return track, nil
}

func (s *MySQLStore) Purge(ctx context.Context, videoID string) (int, error) {
	if err := checkVideoID(videoID); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("video_id = ?", videoID).Delete(&cueRow{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Where("video_id = ?", videoID).Delete(&videoRow{}).Error
	})
	if err != nil {
		return 0, persistenceError("purge", videoID, err)
	}
	return int(removed), nil
}

func (s *MySQLStore) Count(ctx context.Context, videoID string) (int, error) {
	if err := checkVideoID(videoID); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int64
	if err := s.db.WithContext(ctx).Model(&cueRow{}).Where("video_id = ?", videoID).Count(&n).Error; err != nil {
		return 0, persistenceError("count", videoID, err)
	}
	return int(n), nil
}
