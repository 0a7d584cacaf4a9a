// Package catalog serves the purchasable package list, cached in redis
// in front of the upstream platform.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fenuasim/portal/internal/config"
	"github.com/fenuasim/portal/internal/providers/esim"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const cacheKeyPackages = "catalog:packages"

// PackageLister is the upstream source of truth for the catalog.
type PackageLister interface {
	ListPackages(ctx context.Context) ([]esim.Package, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Upstream PackageLister
	Client   *redis.Client `optional:"true"`
	Holder   *config.PortalConfigHolder
}

type Service struct {
	log      *zap.Logger
	upstream PackageLister
	client   *redis.Client
	holder   *config.PortalConfigHolder
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("catalog.service"),
		upstream: p.Upstream,
		client:   p.Client,
		holder:   p.Holder,
	}
}

// ListPackages returns the catalog, preferring the cache. Cache misses
// and redis failures both fall through to the upstream; a fetch result
// is written back best effort.
func (s *Service) ListPackages(ctx context.Context) ([]esim.Package, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}

	packages, err := s.upstream.ListPackages(ctx)
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, packages)
	return packages, nil
}

func (s *Service) fromCache(ctx context.Context) ([]esim.Package, bool) {
	if s.client == nil {
		return nil, false
	}

	raw, err := s.client.Get(ctx, cacheKeyPackages).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("catalog cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var packages []esim.Package
	if err := json.Unmarshal(raw, &packages); err != nil {
		s.log.Warn("catalog cache entry corrupt, refetching", zap.Error(err))
		return nil, false
	}
	return packages, true
}

func (s *Service) writeCache(ctx context.Context, packages []esim.Package) {
	if s.client == nil {
		return
	}

	raw, err := json.Marshal(packages)
	if err != nil {
		return
	}
	ttl := time.Duration(s.holder.Current().Catalog.CacheTTLSeconds) * time.Second
	if err := s.client.Set(ctx, cacheKeyPackages, raw, ttl).Err(); err != nil {
		s.log.Warn("catalog cache write failed", zap.Error(err))
	}
}
