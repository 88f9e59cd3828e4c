package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/boloastro/payments/internal/entitlement/domain"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
	pkgdb "github.com/boloastro/payments/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// TryInsert races on the source_order_id unique index. The caller applies
// access side effects only when this returns true.
func (r *repo) TryInsert(ctx context.Context, db *gorm.DB, ent *domain.Entitlement) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (id, phone, product_type, source_order_id, granted_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (source_order_id) DO NOTHING`,
		ent.ID,
		ent.Phone,
		ent.ProductType,
		ent.SourceOrderID,
		ent.GrantedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) GetByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Entitlement, error) {
	var item domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM entitlements WHERE source_order_id = ? LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkRevoked(ctx context.Context, db *gorm.DB, orderID snowflake.ID, reason string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET revoked_at = ?, revoke_reason = ?
		 WHERE source_order_id = ? AND revoked_at IS NULL`,
		at,
		reason,
		orderID,
	).Error
}

func (r *repo) GetAccess(ctx context.Context, db *gorm.DB, phone string) (*domain.UserAccess, error) {
	var item domain.UserAccess
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM user_access WHERE phone = ? LIMIT 1`,
		phone,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Phone == "" {
		return nil, nil
	}
	return &item, nil
}

// ApplyAccess upserts the user_access row. delta is +1 on grant and -1 on
// revoke; for QNA it is multiplied into credits, for report products any
// positive delta unlocks and any negative delta locks.
func (r *repo) ApplyAccess(ctx context.Context, db *gorm.DB, phone string, productType orderdomain.ProductType, delta int) error {
	now := time.Now().UTC()
	switch productType {
	case orderdomain.ProductKundali:
		return db.WithContext(ctx).Exec(
			`INSERT INTO user_access (phone, kundali_access, milan_access, qna_credits, updated_at)
			 VALUES (?, ?, FALSE, 0, ?)
			 ON CONFLICT (phone) DO UPDATE SET kundali_access = ?, updated_at = ?`,
			phone, delta > 0, now, delta > 0, now,
		).Error
	case orderdomain.ProductMilan:
		return db.WithContext(ctx).Exec(
			`INSERT INTO user_access (phone, kundali_access, milan_access, qna_credits, updated_at)
			 VALUES (?, FALSE, ?, 0, ?)
			 ON CONFLICT (phone) DO UPDATE SET milan_access = ?, updated_at = ?`,
			phone, delta > 0, now, delta > 0, now,
		).Error
	case orderdomain.ProductQNA:
		credits := delta * domain.QnaPackCredits
		return db.WithContext(ctx).Exec(
			`INSERT INTO user_access (phone, kundali_access, milan_access, qna_credits, updated_at)
			 VALUES (?, FALSE, FALSE, ?, ?)
			 ON CONFLICT (phone) DO UPDATE SET
			   qna_credits = CASE WHEN user_access.qna_credits + ? < 0 THEN 0 ELSE user_access.qna_credits + ? END,
			   updated_at = ?`,
			phone, max(credits, 0), now, credits, credits, now,
		).Error
	default:
		return fmt.Errorf("apply access: unknown product type %q", productType)
	}
}

func (r *repo) AppendLog(ctx context.Context, db *gorm.DB, entry *domain.LogEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}
