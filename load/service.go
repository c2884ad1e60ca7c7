package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"loadboard/auth"
)

var (
	// ErrValidation wraps field-level problems on create.
	ErrValidation = errors.New("load: invalid request")
	// ErrForbidden signals the actor's role or identity does not permit the
	// operation.
	ErrForbidden = errors.New("load: forbidden")
)

// Actor identifies the authenticated caller of a lifecycle operation.
type Actor struct {
	ID   string
	Role auth.Role
}

// Broadcaster fans events out to connected clients. Implementations must not
// block; delivery is best-effort.
type Broadcaster interface {
	LoadPosted(l Load)
	CarrierLocation(loadID string, lat, lng float64)
}

// AcceptanceObserver is notified after an accept commits. It runs detached
// from the accepting request and its failures never surface to the caller.
type AcceptanceObserver interface {
	LoadAccepted(ctx context.Context, l Load)
}

// Service owns the load lifecycle: guarded transitions, role gating, and the
// side effects hanging off each transition.
type Service struct {
	repo      Repository
	broadcast Broadcaster
	observer  AcceptanceObserver
	logger    *slog.Logger
	idGen     func() string
	now       func() time.Time
}

func NewService(repo Repository, broadcast Broadcaster, observer AcceptanceObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		broadcast: broadcast,
		observer:  observer,
		logger:    logger,
		idGen:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create posts a new load on behalf of a shipper and announces it to every
// connected client.
func (s *Service) Create(ctx context.Context, actor Actor, params CreateParams) (Load, error) {
	if actor.Role != auth.RoleShipper {
		return Load{}, fmt.Errorf("%w: only shippers can post loads", ErrForbidden)
	}
	if err := validateCreate(params); err != nil {
		return Load{}, err
	}

	created, err := s.repo.Create(ctx, Load{
		ID:            s.idGen(),
		Title:         strings.TrimSpace(params.Title),
		Origin:        strings.TrimSpace(params.Origin),
		Destination:   strings.TrimSpace(params.Destination),
		EquipmentType: strings.TrimSpace(params.EquipmentType),
		Rate:          params.Rate,
		PostedBy:      actor.ID,
		PickupDate:    params.PickupDate,
		DeliveryDate:  params.DeliveryDate,
	})
	if err != nil {
		return Load{}, err
	}

	if s.broadcast != nil {
		s.broadcast.LoadPosted(created)
	}

	return created, nil
}

// Accept assigns an open load to the acting carrier. The conditional update
// in the repository guarantees at most one winner under concurrent attempts;
// every loser receives ErrNotOpen. Document generation and the carrier email
// run detached and cannot roll the acceptance back.
func (s *Service) Accept(ctx context.Context, actor Actor, loadID string) (Load, error) {
	if actor.Role != auth.RoleCarrier {
		return Load{}, fmt.Errorf("%w: only carriers can accept loads", ErrForbidden)
	}

	accepted, err := s.repo.AcceptOpen(ctx, loadID, actor.ID)
	if err != nil {
		return Load{}, err
	}

	if s.observer != nil {
		go func(l Load) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("acceptance side effect panicked", "load_id", l.ID, "panic", r)
				}
			}()
			s.observer.LoadAccepted(context.WithoutCancel(ctx), l)
		}(accepted)
	}

	return accepted, nil
}

// Deliver finishes a load. Only the assigned carrier may call it, from
// accepted or in_transit.
func (s *Service) Deliver(ctx context.Context, actor Actor, loadID string) (Load, error) {
	if actor.Role != auth.RoleCarrier {
		return Load{}, fmt.Errorf("%w: only carriers can deliver loads", ErrForbidden)
	}
	return s.repo.MarkDelivered(ctx, loadID, actor.ID)
}

// PublishLocation persists the carrier's position (last-write-wins) and fans
// the update out to the load's subscribers. The store enforces that only the
// assigned carrier may publish.
func (s *Service) PublishLocation(ctx context.Context, carrierID, loadID string, lat, lng float64) (Load, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Load{}, fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}

	updated, err := s.repo.UpdateCarrierLocation(ctx, loadID, carrierID, lat, lng)
	if err != nil {
		return Load{}, err
	}

	if s.broadcast != nil {
		s.broadcast.CarrierLocation(loadID, lat, lng)
	}

	return updated, nil
}

// Board lists the open pool plus the carrier's own assigned loads.
func (s *Service) Board(ctx context.Context, actor Actor) ([]Load, error) {
	if actor.Role != auth.RoleCarrier {
		return nil, fmt.Errorf("%w: only carriers can browse the board", ErrForbidden)
	}
	return s.repo.ListBoard(ctx, actor.ID)
}

// Posted lists the shipper's own loads with optional status filter and sort.
func (s *Service) Posted(ctx context.Context, actor Actor, filters PostedFilters) ([]Load, error) {
	if actor.Role != auth.RoleShipper {
		return nil, fmt.Errorf("%w: only shippers can list posted loads", ErrForbidden)
	}
	if filters.Status != "" && !filters.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filters.Status)
	}
	return s.repo.ListPosted(ctx, actor.ID, filters)
}

// Accepted lists the carrier's assigned loads, paginated.
func (s *Service) Accepted(ctx context.Context, actor Actor, page, limit int) (Page, error) {
	if actor.Role != auth.RoleCarrier {
		return Page{}, fmt.Errorf("%w: only carriers can list accepted loads", ErrForbidden)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	loads, total, err := s.repo.ListAccepted(ctx, actor.ID, page, limit)
	if err != nil {
		return Page{}, err
	}

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	return Page{
		Loads:       loads,
		TotalPages:  totalPages,
		CurrentPage: page,
	}, nil
}

// Get fetches a single load by id.
func (s *Service) Get(ctx context.Context, loadID string) (Load, error) {
	return s.repo.GetByID(ctx, loadID)
}

func validateCreate(params CreateParams) error {
	var missing []string
	if strings.TrimSpace(params.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(params.Origin) == "" {
		missing = append(missing, "origin")
	}
	if strings.TrimSpace(params.Destination) == "" {
		missing = append(missing, "destination")
	}
	if strings.TrimSpace(params.EquipmentType) == "" {
		missing = append(missing, "equipmentType")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if params.Rate < 0 {
		return fmt.Errorf("%w: rate must be non-negative", ErrValidation)
	}
	return nil
}
