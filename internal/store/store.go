package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
)

var ErrUnknownDriver = errors.New("unknown database driver")

// GameRecord is one finished game.
type GameRecord struct {
	gorm.Model
	RoomID   string         `gorm:"index;not null" json:"roomId"`
	RoomName string         `json:"roomName"`
	Status   string         `gorm:"not null" json:"status"`
	Days     int            `json:"days"`
	Players  []PlayerRecord `gorm:"foreignKey:GameID" json:"players"`
}

type PlayerRecord struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	GameID   uint   `gorm:"index" json:"-"`
	PlayerID string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsHost   bool   `json:"isHost"`
	IsAlive  bool   `json:"isAlive"`
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects with driver ("postgres" or "sqlite") and migrates the schema.
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	s := New(db, log)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log.Named("store")}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&GameRecord{}, &PlayerRecord{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveGame writes the game and its players in one transaction.
func (s *Store) SaveGame(ctx context.Context, r engine.Result) error {
	rec := GameRecord{
		RoomID:   r.RoomID,
		RoomName: r.RoomName,
		Status:   string(r.Status),
		Days:     r.Days,
		Players:  make([]PlayerRecord, 0, len(r.Players)),
	}
	for _, p := range r.Players {
		rec.Players = append(rec.Players, PlayerRecord{
			PlayerID: p.ID,
			Name:     p.Name,
			Role:     string(p.Role),
			IsHost:   p.IsHost,
			IsAlive:  p.IsAlive,
		})
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store: save game %s: %w", r.RoomID, err)
	}
	s.log.Info("game archived", zap.String("room", r.RoomID), zap.Uint("id", rec.ID), zap.String("status", rec.Status))
	return nil
}

// RecentGames lists the latest finished games, newest first.
func (s *Store) RecentGames(ctx context.Context, limit int) ([]GameRecord, error) {
	var games []GameRecord
	err := s.db.WithContext(ctx).
		Preload("Players", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("created_at desc").Order("id desc").
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent games: %w", err)
	}
	return games, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
