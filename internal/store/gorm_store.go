package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/courtdata/feature-engine/internal/models"
	"github.com/courtdata/feature-engine/pkg/logger"
)

// GormStore is the live EventStore backed by the relational game log.
// Fallback point queries issued during a batch run are rate-limited and
// breaker-guarded so a misconfigured preload scope degrades throughput
// instead of hammering the database.
type GormStore struct {
	db      *gorm.DB
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *logrus.Entry
}

// GormStoreConfig tunes the fallback-path protection.
type GormStoreConfig struct {
	RateLimit        float64       // queries per second, 0 disables limiting
	RateBurst        int
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

func DefaultGormStoreConfig() GormStoreConfig {
	return GormStoreConfig{
		RateLimit:        50,
		RateBurst:        25,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

func NewGormStore(db *gorm.DB, cfg GormStoreConfig) *GormStore {
	log := logger.WithComponent("event_store")

	settings := gobreaker.Settings{
		Name:        "event-store",
		MaxRequests: uint32(cfg.BreakerThreshold),
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("Circuit breaker state changed")
		},
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return &GormStore{
		db:      db,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: limiter,
		logger:  log,
	}
}

// execute wraps a query with rate limiting and breaker protection.
func (s *GormStore) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}
	return s.breaker.Execute(fn)
}

func (s *GormStore) GamesForSeasons(ctx context.Context, seasons []string) ([]models.GameEvent, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		var games []models.GameEvent
		err := s.db.WithContext(ctx).
			Where("season IN ?", seasons).
			Order("date ASC, id ASC").
			Find(&games).Error
		return games, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load games for seasons %v: %w", seasons, err)
	}
	return result.([]models.GameEvent), nil
}

func (s *GormStore) GameByMatchup(ctx context.Context, home, away, season string, date time.Time) (*models.GameEvent, error) {
	day := models.NormalizeDate(date)
	result, err := s.execute(ctx, func() (interface{}, error) {
		var game models.GameEvent
		err := s.db.WithContext(ctx).
			Where("home_team = ? AND away_team = ? AND season = ? AND date >= ? AND date < ?",
				home, away, season, day, day.AddDate(0, 0, 1)).
			First(&game).Error
		if err == gorm.ErrRecordNotFound {
			return (*models.GameEvent)(nil), nil
		}
		return &game, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve game %s@%s %s: %w", away, home, day.Format("2006-01-02"), err)
	}
	return result.(*models.GameEvent), nil
}

func (s *GormStore) PlayerRecordsBefore(ctx context.Context, team, season string, before time.Time) ([]models.PlayerGameRecord, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		var records []models.PlayerGameRecord
		err := s.db.WithContext(ctx).
			Where("team = ? AND season = ? AND date < ? AND minutes > 0", team, season, before).
			Order("date ASC, id ASC").
			Find(&records).Error
		return records, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load player records for %s %s: %w", team, season, err)
	}
	return result.([]models.PlayerGameRecord), nil
}

func (s *GormStore) PlayerRecordsForSeasons(ctx context.Context, seasons []string) ([]models.PlayerGameRecord, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		var records []models.PlayerGameRecord
		err := s.db.WithContext(ctx).
			Where("season IN ? AND minutes > 0", seasons).
			Order("date ASC, id ASC").
			Find(&records).Error
		return records, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load player records for seasons %v: %w", seasons, err)
	}
	return result.([]models.PlayerGameRecord), nil
}

func (s *GormStore) PlayerLastGameBefore(ctx context.Context, playerID, season string, before time.Time) (*models.PlayerGameRecord, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		var rec models.PlayerGameRecord
		err := s.db.WithContext(ctx).
			Where("player_id = ? AND season = ? AND date < ? AND minutes > 0", playerID, season, before).
			Order("date DESC, id DESC").
			First(&rec).Error
		if err == gorm.ErrRecordNotFound {
			return (*models.PlayerGameRecord)(nil), nil
		}
		return &rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load last game for player %s: %w", playerID, err)
	}
	return result.(*models.PlayerGameRecord), nil
}

func (s *GormStore) Roster(ctx context.Context, team, season string) ([]models.RosterEntry, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		var entries []models.RosterEntry
		err := s.db.WithContext(ctx).
			Where("team = ? AND season = ?", team, season).
			Find(&entries).Error
		return entries, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load roster for %s %s: %w", team, season, err)
	}
	return result.([]models.RosterEntry), nil
}

func (s *GormStore) Venues(ctx context.Context) ([]models.Venue, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		var venues []models.Venue
		err := s.db.WithContext(ctx).Find(&venues).Error
		return venues, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load venues: %w", err)
	}
	return result.([]models.Venue), nil
}

func (s *GormStore) PlayerPERRows(ctx context.Context, season string) ([]models.PlayerSeasonPER, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		var rows []models.PlayerSeasonPER
		err := s.db.WithContext(ctx).
			Where("season = ?", season).
			Find(&rows).Error
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load PER rows for season %s: %w", season, err)
	}
	return result.([]models.PlayerSeasonPER), nil
}

func (s *GormStore) SaveEloHistory(ctx context.Context, rows []models.EloHistory) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("failed to save elo history: %w", err)
	}
	s.logger.WithField("rows", len(rows)).Info("Elo history persisted")
	return nil
}

// Migrate creates the engine's tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GameEvent{},
		&models.PlayerGameRecord{},
		&models.RosterEntry{},
		&models.Venue{},
		&models.PlayerSeasonPER{},
		&models.EloHistory{},
	)
}
