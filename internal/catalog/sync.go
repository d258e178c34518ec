// Package catalog republishes the provider catalog as priced service rows.
package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/0xRedwolf/caryvn-backend/internal/pricing"
	"github.com/0xRedwolf/caryvn-backend/internal/provider"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"
)

// Source supplies the upstream catalog.
type Source interface {
	GetServices(ctx context.Context, forceRefresh bool) ([]provider.Service, error)
}

// Syncer pulls the provider catalog and upserts priced Service rows.
type Syncer struct {
	repo   repo.RepositoryInterface
	source Source
	log    *zap.SugaredLogger
}

func NewSyncer(r repo.RepositoryInterface, source Source, logger *zap.SugaredLogger) *Syncer {
	return &Syncer{repo: r, source: source, log: logger}
}

// Sync upserts every upstream entry keyed by provider id, recomputing the
// user rate through the markup rules, then soft-disables active services the
// provider no longer returned. Returns the number of services upserted.
func (s *Syncer) Sync(ctx context.Context, forceRefresh bool) (int, error) {
	services, err := s.source.GetServices(ctx, forceRefresh)
	if err != nil {
		return 0, err
	}
	rules, err := s.repo.ActiveMarkupRules(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	var syncedIDs []int64
	for _, svc := range services {
		if svc.Service == 0 {
			continue
		}
		userRate := pricing.UserRate(svc.Rate, 0, svc.Category, "", rules)

		minQty := int(svc.Min)
		if minQty <= 0 {
			minQty = 10
		}
		maxQty := int(svc.Max)
		if maxQty <= 0 {
			maxQty = 10000
		}
		serviceType := svc.Type
		if serviceType == "" {
			serviceType = "Default"
		}

		row := &model.Service{
			ProviderID:   int64(svc.Service),
			Name:         svc.Name,
			CategoryName: svc.Category,
			ProviderRate: svc.Rate,
			UserRate:     userRate,
			MinQuantity:  minQty,
			MaxQuantity:  maxQty,
			ServiceType:  serviceType,
			HasRefill:    svc.Refill,
			HasCancel:    svc.Cancel,
			IsActive:     true,
			LastSyncedAt: time.Now(),
		}
		if err := s.repo.UpsertService(ctx, row); err != nil {
			return count, err
		}
		syncedIDs = append(syncedIDs, int64(svc.Service))
		count++
	}

	deactivated, err := s.repo.DeactivateServicesNotIn(ctx, syncedIDs)
	if err != nil {
		return count, err
	}
	if deactivated > 0 {
		s.log.Infof("deactivated %d services no longer offered by provider", deactivated)
	}
	return count, nil
}
