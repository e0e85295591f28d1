// Package storeprofile loads the store identity printed on every document
// and caches it in Redis.
package storeprofile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/report"
)

const (
	// DefaultTTL applies when the configured TTL is not positive.
	DefaultTTL = 10 * time.Minute
	cacheKey   = "posdesk:store:profile"
	companyURL = "/company"
)

// Profile is the store identity.
type Profile struct {
	Name    string `json:"name"`
	TRN     string `json:"trn"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Store converts the profile for the print builders.
func (p Profile) Store() printdoc.Store {
	return printdoc.Store{Name: p.Name, TRN: p.TRN, Address: p.Address, Phone: p.Phone}
}

var profileAdapter = report.Adapter{
	Keys: []string{"name", "trn", "address", "phone"},
	Aliases: map[string][]string{
		"name":    {"companyName", "storeName", "legalName"},
		"trn":     {"vatNumber", "taxNumber", "trnNumber", "taxRegistrationNumber"},
		"address": {"addressLine", "fullAddress"},
		"phone":   {"phoneNumber", "mobile", "contactNumber"},
	},
}

// FromRaw maps a /company response onto a Profile.
func FromRaw(raw map[string]any) Profile {
	row := profileAdapter.Adapt(raw)
	text := func(key string) string {
		if v, ok := row[key]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
		return ""
	}
	return Profile{Name: text("name"), TRN: text("trn"), Address: text("address"), Phone: text("phone")}
}

// Source reads JSON from the backend.
type Source interface {
	GetJSON(ctx context.Context, path string, params any, dest any) error
}

// Service returns the store profile, preferring the cache.
type Service struct {
	source Source
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. rdb may be nil, in which case every call
// goes to the backend.
func NewService(source Source, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, rdb: rdb, ttl: ttl, logger: logger}
}

// Get returns the cached profile or fetches it.
func (s *Service) Get(ctx context.Context) (Profile, error) {
	if p, ok := s.cached(ctx); ok {
		return p, nil
	}
	v, err, _ := s.group.Do(cacheKey, func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return Profile{}, err
	}
	return v.(Profile), nil
}

// Invalidate drops the cached profile.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	if err := s.rdb.Del(ctx, cacheKey).Err(); err != nil {
		return fmt.Errorf("storeprofile: invalidate: %w", err)
	}
	return nil
}

func (s *Service) cached(ctx context.Context) (Profile, bool) {
	if s.rdb == nil {
		return Profile{}, false
	}
	data, err := s.rdb.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("store profile cache read failed", slog.Any("error", err))
		}
		return Profile{}, false
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn("store profile cache entry invalid", slog.Any("error", err))
		return Profile{}, false
	}
	return p, true
}

func (s *Service) fetch(ctx context.Context) (Profile, error) {
	var raw map[string]any
	if err := s.source.GetJSON(ctx, companyURL, nil, &raw); err != nil {
		return Profile{}, fmt.Errorf("storeprofile: fetch: %w", err)
	}
	p := FromRaw(raw)
	if s.rdb != nil {
		data, err := json.Marshal(p)
		if err == nil {
			err = s.rdb.Set(ctx, cacheKey, data, s.ttl).Err()
		}
		if err != nil {
			s.logger.Warn("store profile cache write failed", slog.Any("error", err))
		}
	}
	return p, nil
}
