package service

import (
	"context"
	"encoding/json"

	"github.com/boloastro/payments/internal/clock"
	"github.com/boloastro/payments/internal/entitlement/domain"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

// Service grants on its own DB handle: a grant that fails must not roll
// back the payment that triggered it. Revocation is the exception and can
// join the caller's transaction through RevokeIn.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("entitlement.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Grant records the entitlement and applies access side effects exactly once
// per order. Replays lose the insert race and return nil without touching
// user_access again.
func (s *Service) Grant(ctx context.Context, phone string, productType orderdomain.ProductType, orderID snowflake.ID, metadata map[string]string) error {
	now := s.clock.Now()
	ent := &domain.Entitlement{
		ID:            s.genID.Generate(),
		Phone:         phone,
		ProductType:   productType,
		SourceOrderID: orderID,
		GrantedAt:     now,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.TryInsert(ctx, tx, ent)
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Debug("entitlement already granted",
				zap.String("phone", phone),
				zap.Int64("order_id", int64(orderID)),
			)
			return nil
		}

		if err := s.repo.ApplyAccess(ctx, tx, phone, productType, 1); err != nil {
			return err
		}

		var meta datatypes.JSON
		if len(metadata) > 0 {
			raw, err := json.Marshal(metadata)
			if err == nil {
				meta = raw
			}
		}
		if err := s.repo.AppendLog(ctx, tx, &domain.LogEntry{
			ID:          s.genID.Generate(),
			Phone:       phone,
			ProductType: string(productType),
			Action:      domain.ActionGrant,
			OrderID:     orderID,
			Metadata:    meta,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		s.log.Info("entitlement granted",
			zap.String("phone", phone),
			zap.String("product_type", string(productType)),
			zap.Int64("order_id", int64(orderID)),
		)
		return nil
	})
}

// Revoke reverses a previous grant, typically on refund. Revoking an order
// that was never granted, or was already revoked, is a no-op.
func (s *Service) Revoke(ctx context.Context, phone string, productType orderdomain.ProductType, orderID snowflake.ID, reason string) error {
	return s.RevokeIn(ctx, s.db, phone, productType, orderID, reason)
}

// RevokeIn runs the revocation on the caller's handle. A refund passes its own
// transaction here so the order cannot commit as REFUNDED while access stays
// granted.
func (s *Service) RevokeIn(ctx context.Context, db *gorm.DB, phone string, productType orderdomain.ProductType, orderID snowflake.ID, reason string) error {
	now := s.clock.Now()

	return db.Transaction(func(tx *gorm.DB) error {
		ent, err := s.repo.GetByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if ent == nil || ent.RevokedAt != nil {
			return nil
		}

		if err := s.repo.MarkRevoked(ctx, tx, orderID, reason, now); err != nil {
			return err
		}
		if err := s.repo.ApplyAccess(ctx, tx, phone, productType, -1); err != nil {
			return err
		}
		if err := s.repo.AppendLog(ctx, tx, &domain.LogEntry{
			ID:          s.genID.Generate(),
			Phone:       phone,
			ProductType: string(productType),
			Action:      domain.ActionRevoke,
			OrderID:     orderID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		s.log.Info("entitlement revoked",
			zap.String("phone", phone),
			zap.String("product_type", string(productType)),
			zap.Int64("order_id", int64(orderID)),
			zap.String("reason", reason),
		)
		return nil
	})
}

func (s *Service) HasAccess(ctx context.Context, phone string, productType orderdomain.ProductType) (bool, error) {
	access, err := s.repo.GetAccess(ctx, s.db, phone)
	if err != nil {
		return false, err
	}
	if access == nil {
		return false, nil
	}
	switch productType {
	case orderdomain.ProductKundali:
		return access.KundaliAccess, nil
	case orderdomain.ProductMilan:
		return access.MilanAccess, nil
	case orderdomain.ProductQNA:
		return access.QnaCredits > 0, nil
	default:
		return false, nil
	}
}
