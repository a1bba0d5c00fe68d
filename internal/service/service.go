package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tiendapos/backend/internal/access"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/events"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	defaultSaleNumberAttempts = 5
	defaultPublishTimeout     = 2 * time.Second
)

type Service struct {
	repo      store.Repository
	access    *access.Resolver
	publisher events.Publisher
	logger    *zap.Logger

	now                func() time.Time
	saleNumber         func(branchCode string, at time.Time) string
	saleNumberAttempts int
	publishTimeout     time.Duration
}

type Option func(*Service)

// WithSaleNumberAttempts bounds how many fresh sale numbers CreateSale tries
// before giving up on unique collisions.
func WithSaleNumberAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.saleNumberAttempts = n
		}
	}
}

// WithPublishTimeout bounds how long a committed sale waits on the event
// publisher before its response is returned.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithSaleNumberGenerator(fn func(branchCode string, at time.Time) string) Option {
	return func(s *Service) {
		s.saleNumber = fn
	}
}

func New(repo store.Repository, resolver *access.Resolver, publisher events.Publisher, logger *zap.Logger, opts ...Option) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:               repo,
		access:             resolver,
		publisher:          publisher,
		logger:             logger,
		now:                func() time.Time { return time.Now().UTC() },
		saleNumber:         xid.SaleNumber,
		saleNumberAttempts: defaultSaleNumberAttempts,
		publishTimeout:     defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Me returns the calling actor with the permission codes of its role.
func (s *Service) Me(ctx context.Context) (domain.MeResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.MeResponse{}, err
	}
	codes, err := s.access.Permissions(ctx, actor.RoleID)
	if err != nil {
		return domain.MeResponse{}, err
	}
	return domain.MeResponse{Actor: actor, Permissions: codes}, nil
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.RequireRole(actor, domain.RoleSuperadmin, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		y, m, d := s.now().Date()
		from = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == 0 {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	var actorID *int64
	if actor.UserID != 0 {
		id := actor.UserID
		actorID = &id
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorID:       actorID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

// publish emits a sale event. The sale is already committed, so failures
// are logged and not returned. The write is detached from the request's
// cancellation and bounded by publishTimeout.
func (s *Service) publish(ctx context.Context, eventType string, sale *domain.Sale, actorID int64) {
	event := domain.SaleEvent{
		ID:             xid.New("evt"),
		Type:           eventType,
		SaleID:         sale.ID,
		SaleNumber:     sale.SaleNumber,
		BranchID:       sale.BranchID,
		Status:         sale.Status,
		DeliveryStatus: sale.DeliveryStatus,
		TotalCents:     sale.TotalCents,
		ActorID:        actorID,
		OccurredAt:     s.now(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.logger.Warn("failed to publish sale event",
			zap.String("type", eventType),
			zap.Int64("sale_id", sale.ID),
			zap.Error(err),
		)
	}
}
