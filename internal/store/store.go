// Package store persists users, hosts, overrides, templates and the response
// rules on sqlite via gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

// ErrNotFound is wrapped by every Load method when the record does not exist.
var ErrNotFound = model.ErrNotFound

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&userRecord{},
		&hostRecord{},
		&hostOverrideRecord{},
		&templateRecord{},
		&rulesConfigRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping is used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// LoadRulesConfig returns the most recently saved rules document.
func (s *Store) LoadRulesConfig(ctx context.Context) (*model.RulesConfig, error) {
	var rec rulesConfigRecord
	if err := s.db.WithContext(ctx).Order("id desc").First(&rec).Error; err != nil {
		return nil, notFound(err, "rules config")
	}
	cfg := rec.Config
	return &cfg, nil
}

func (s *Store) SaveRulesConfig(ctx context.Context, cfg *model.RulesConfig) error {
	if cfg == nil {
		return errors.New("rules config is nil")
	}
	rec := rulesConfigRecord{Version: cfg.Version, Config: *cfg}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *Store) LoadTemplate(ctx context.Context, typ model.TemplateType, name string) (*model.TemplateSource, error) {
	var rec templateRecord
	err := s.db.WithContext(ctx).
		Where("type = ? AND name = ?", string(typ), name).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("template %s/%s", typ, name))
	}
	return &model.TemplateSource{
		Type:      model.TemplateType(rec.Type),
		Name:      rec.Name,
		Content:   rec.Content,
		SourceURL: rec.SourceURL,
	}, nil
}

// SaveTemplate inserts or replaces the template with the same type and name.
func (s *Store) SaveTemplate(ctx context.Context, src model.TemplateSource) error {
	if !src.Type.Valid() {
		return fmt.Errorf("unknown template type %q", src.Type)
	}
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = model.DefaultTemplateName
	}
	rec := templateRecord{Type: string(src.Type), Name: name, Content: src.Content, SourceURL: src.SourceURL}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "source_url", "updated_at"}),
	}).Create(&rec).Error
}

func (s *Store) LoadUser(ctx context.Context, shortUUID string) (*model.UserSecrets, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).Where("short_uuid = ?", shortUUID).First(&rec).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("user %q", shortUUID))
	}
	return rec.toModel(), nil
}

// SaveUser inserts or updates u keyed by ShortUUID. Missing identifiers are
// generated and written back to u.
func (s *Store) SaveUser(ctx context.Context, u *model.UserSecrets) error {
	if u.ShortUUID == "" {
		u.ShortUUID = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	if u.VLESSUUID == "" {
		u.VLESSUUID = uuid.NewString()
	}
	rec := userFromModel(u)
	rec.ID = 0
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "short_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "squad_id", "vless_uuid", "trojan_password", "ss_password",
			"expire_at", "traffic_used", "traffic_limit", "updated_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return err
	}
	var saved userRecord
	if err := s.db.WithContext(ctx).Select("id").Where("short_uuid = ?", u.ShortUUID).First(&saved).Error; err != nil {
		return err
	}
	u.ID = saved.ID
	return nil
}

// LoadHosts returns the squad's hosts in display order, disabled ones
// included; the formatter drops those.
func (s *Store) LoadHosts(ctx context.Context, squadID uint) ([]model.Host, error) {
	var recs []hostRecord
	err := s.db.WithContext(ctx).
		Where("squad_id = ?", squadID).
		Order("position asc").Order("id asc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("hosts of squad %d: %w", squadID, err)
	}
	out := make([]model.Host, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toModel())
	}
	return out, nil
}

// SaveHost inserts h when its ID is zero and replaces it otherwise.
func (s *Store) SaveHost(ctx context.Context, h *model.Host) error {
	rec := hostFromModel(h)
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return err
	}
	h.ID = rec.ID
	return nil
}

func (s *Store) LoadOverrides(ctx context.Context, squadID uint) (map[uint]model.Override, error) {
	var recs []hostOverrideRecord
	if err := s.db.WithContext(ctx).Where("squad_id = ?", squadID).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("overrides of squad %d: %w", squadID, err)
	}
	out := make(map[uint]model.Override, len(recs))
	for _, r := range recs {
		out[r.HostID] = model.Override{
			HostID:     r.HostID,
			Address:    r.Address,
			Port:       r.Port,
			Remark:     r.Remark,
			SNI:        r.SNI,
			HostHeader: r.HostHeader,
		}
	}
	return out, nil
}

func (s *Store) SaveOverride(ctx context.Context, squadID uint, o model.Override) error {
	rec := hostOverrideRecord{
		SquadID:    squadID,
		HostID:     o.HostID,
		Address:    o.Address,
		Port:       o.Port,
		Remark:     o.Remark,
		SNI:        o.SNI,
		HostHeader: o.HostHeader,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "squad_id"}, {Name: "host_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "port", "remark", "sni", "host_header", "updated_at"}),
	}).Create(&rec).Error
}
