package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/0xRedwolf/caryvn-backend/internal/model"
)

const servicesCacheKey = "smm_provider_services"

// CreateOrder inserts the order row inside tx.
func (r *Repository) CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	return tx.WithContext(ctx).Create(o).Error
}

// SaveOrder persists all order fields. tx may be nil for standalone writes.
func (r *Repository) SaveOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).Save(o).Error
}

func (r *Repository) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	var o model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) ListOrders(ctx context.Context, userID, status string, limit, offset int) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []model.Order
	err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&orders).Error
	return orders, total, err
}

// ActiveOrders returns orders accepted upstream that are still in a
// non-terminal state.
func (r *Repository) ActiveOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("provider_order_id <> '' AND status IN ?", model.ActiveOrderStatuses).
		Order("created_at").
		Find(&orders).Error
	return orders, err
}

// OrphanedOrders returns charged orders that never reached the provider:
// still PENDING, no provider order id, older than the cutoff.
func (r *Repository) OrphanedOrders(ctx context.Context, before time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("provider_order_id = '' AND status = ? AND created_at < ?", model.OrderPending, before).
		Find(&orders).Error
	return orders, err
}

// UpsertService inserts or updates a catalog row keyed by provider_id.
func (r *Repository) UpsertService(ctx context.Context, svc *model.Service) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "category_name", "provider_rate", "user_rate",
				"min_quantity", "max_quantity", "service_type",
				"has_refill", "has_cancel", "is_active", "last_synced_at",
			}),
		}).
		Create(svc).Error
}

// DeactivateServicesNotIn soft-disables active services the provider no
// longer offers. Never deletes.
func (r *Repository) DeactivateServicesNotIn(ctx context.Context, providerIDs []int64) (int64, error) {
	if len(providerIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&model.Service{}).
		Where("is_active = ? AND provider_id NOT IN ?", true, providerIDs).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (r *Repository) GetService(ctx context.Context, id uint64) (*model.Service, error) {
	var s model.Service
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) ListActiveServices(ctx context.Context) ([]model.Service, error) {
	var svcs []model.Service
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("category_name, name").
		Find(&svcs).Error
	return svcs, err
}

// ActiveMarkupRules returns active rules ordered by descending priority, the
// order the pricing resolver folds them in.
func (r *Repository) ActiveMarkupRules(ctx context.Context) ([]model.MarkupRule, error) {
	var rules []model.MarkupRule
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority desc").
		Find(&rules).Error
	return rules, err
}

func (r *Repository) ListMarkupRules(ctx context.Context) ([]model.MarkupRule, error) {
	var rules []model.MarkupRule
	err := r.db.WithContext(ctx).Order("priority desc, level").Find(&rules).Error
	return rules, err
}

func (r *Repository) CreateMarkupRule(ctx context.Context, rule *model.MarkupRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *Repository) SaveMarkupRule(ctx context.Context, rule *model.MarkupRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *Repository) GetMarkupRule(ctx context.Context, id uint64) (*model.MarkupRule, error) {
	var rule model.MarkupRule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateAPILog records one provider call audit row.
func (r *Repository) CreateAPILog(ctx context.Context, rec *model.APILog) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) ListAPILogs(ctx context.Context, limit int) ([]model.APILog, error) {
	var logs []model.APILog
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&logs).Error
	return logs, err
}

// CacheServices stores the raw provider catalog payload in Redis.
func (r *Repository) CacheServices(ctx context.Context, payload []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, servicesCacheKey, payload, ttl).Err()
}

// CachedServices returns the last cached catalog payload, redis.Nil when
// absent.
func (r *Repository) CachedServices(ctx context.Context) ([]byte, error) {
	return r.rdb.Get(ctx, servicesCacheKey).Bytes()
}
