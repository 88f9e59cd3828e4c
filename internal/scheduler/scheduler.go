package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/boloastro/payments/internal/clock"
	"github.com/boloastro/payments/internal/config"
	entitlementdomain "github.com/boloastro/payments/internal/entitlement/domain"
	ledgerdomain "github.com/boloastro/payments/internal/ledger/domain"
	notificationdomain "github.com/boloastro/payments/internal/notification/domain"
	obsmetrics "github.com/boloastro/payments/internal/observability/metrics"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
	paymentdomain "github.com/boloastro/payments/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing required dependency")

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Orders         orderdomain.Repository
	Ledger         ledgerdomain.Repository
	Processor      paymentdomain.Processor
	Links          paymentdomain.LinkCreator
	EntitlementSvc entitlementdomain.Service
	Dispatcher     notificationdomain.Dispatcher
	Pricing        *config.PricingConfigHolder
	Locker         *Locker `optional:"true"`
	Config         Config  `optional:"true"`
}

// Scheduler drives the periodic payment recovery jobs: reminding users with
// unpaid links, retrying failed payments, reconciling missed entitlement
// grants and replaying failed webhook events.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	orders      orderdomain.Repository
	ledger      ledgerdomain.Repository
	processor   paymentdomain.Processor
	links       paymentdomain.LinkCreator
	entitlement entitlementdomain.Service
	dispatcher  notificationdomain.Dispatcher
	pricing     *config.PricingConfigHolder
	locker      *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Orders == nil ||
		p.Ledger == nil || p.Processor == nil || p.Links == nil || p.EntitlementSvc == nil ||
		p.Dispatcher == nil || p.Pricing == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler"),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		orders:      p.Orders,
		ledger:      p.Ledger,
		processor:   p.Processor,
		links:       p.Links,
		entitlement: p.EntitlementSvc,
		dispatcher:  p.Dispatcher,
		pricing:     p.Pricing,
		locker:      p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	token, acquired, err := s.locker.TryLock(ctx, "scheduler:"+name, timeout)
	if err != nil {
		s.log.Warn("job lock unavailable", zap.String("job", name), zap.Error(err))
		return nil
	}
	if !acquired {
		return nil
	}
	defer func() {
		if rerr := s.locker.Release(context.WithoutCancel(ctx), "scheduler:"+name, token); rerr != nil {
			s.log.Warn("job lock release failed", zap.String("job", name), zap.Error(rerr))
		}
	}()

	err = fn(ctx)
	obsmetrics.Default().ObserveJobRun(name, time.Since(start), err)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", name), zap.Duration("timeout", timeout))
		return nil
	}
	s.log.Error("job failed", zap.String("job", name), zap.Error(err))
	return err
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{"recover_abandoned", 5 * time.Minute, s.RecoverAbandonedOrdersJob},
		{"retry_failed_payments", 5 * time.Minute, s.RetryFailedPaymentsJob},
		{"reconcile_entitlements", 2 * time.Minute, s.ReconcileEntitlementsJob},
		{"retry_failed_events", 2 * time.Minute, s.RetryFailedEventsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, msg notificationdomain.Message) {
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		obsmetrics.Default().ObserveNotification(string(msg.Kind), "error")
		return
	}
	obsmetrics.Default().ObserveNotification(string(msg.Kind), "sent")
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
