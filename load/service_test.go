package load

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"loadboard/auth"
)

var (
	shipperActor = Actor{ID: "shipper-1", Role: auth.RoleShipper}
	carrierActor = Actor{ID: "carrier-1", Role: auth.RoleCarrier}
)

func newTestService(repo Repository) (*Service, *fakeBroadcaster, *fakeObserver) {
	broadcast := &fakeBroadcaster{}
	observer := newFakeObserver()
	svc := NewService(repo, broadcast, observer, nil)
	return svc, broadcast, observer
}

func TestService_CreateRoleGating(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())

	_, err := svc.Create(context.Background(), carrierActor, validCreateParams())
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for carrier create, got %v", err)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())
	ctx := context.Background()

	params := validCreateParams()
	params.Title = ""
	if _, err := svc.Create(ctx, shipperActor, params); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing title, got %v", err)
	}

	params = validCreateParams()
	params.Rate = -1
	if _, err := svc.Create(ctx, shipperActor, params); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative rate, got %v", err)
	}
}

func TestService_CreateBroadcastsNewLoad(t *testing.T) {
	svc, broadcast, _ := newTestService(newFakeRepo())

	created, err := svc.Create(context.Background(), shipperActor, validCreateParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusOpen {
		t.Fatalf("expected status open, got %s", created.Status)
	}
	if created.PostedBy != shipperActor.ID {
		t.Fatalf("expected postedBy %q, got %q", shipperActor.ID, created.PostedBy)
	}

	posted := broadcast.postedLoads()
	if len(posted) != 1 || posted[0].ID != created.ID {
		t.Fatalf("expected one newLoadPosted broadcast for %s, got %v", created.ID, posted)
	}
}

func TestService_AcceptRoleGating(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)
	l := mustCreate(t, svc)

	_, err := svc.Accept(context.Background(), shipperActor, l.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for shipper accept, got %v", err)
	}
}

func TestService_AcceptNotFound(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())

	_, err := svc.Accept(context.Background(), carrierActor, "missing-load")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_AcceptTriggersSideEffects(t *testing.T) {
	svc, _, observer := newTestService(newFakeRepo())
	l := mustCreate(t, svc)

	accepted, err := svc.Accept(context.Background(), carrierActor, l.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}
	if accepted.AcceptedBy == nil || *accepted.AcceptedBy != carrierActor.ID {
		t.Fatalf("expected acceptedBy %q, got %v", carrierActor.ID, accepted.AcceptedBy)
	}

	select {
	case seen := <-observer.accepted:
		if seen.ID != l.ID {
			t.Fatalf("observer saw load %s, want %s", seen.ID, l.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("acceptance observer was not notified")
	}
}

func TestService_AcceptAtMostOneWinner(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())
	l := mustCreate(t, svc)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
	)

	for i := 0; i < n; i++ {
		carrier := Actor{ID: fmt.Sprintf("carrier-%d", i), Role: auth.RoleCarrier}
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted, err := svc.Accept(context.Background(), carrier, l.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, *accepted.AcceptedBy)
			case errors.Is(err, ErrNotOpen):
				conflicts++
			default:
				t.Errorf("unexpected accept error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", len(winners))
	}
	if conflicts != n-1 {
		t.Fatalf("expected %d conflicts, got %d", n-1, conflicts)
	}

	final, err := svc.Get(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.AcceptedBy == nil || *final.AcceptedBy != winners[0] {
		t.Fatalf("final acceptedBy %v does not match winner %s", final.AcceptedBy, winners[0])
	}
}

func TestService_DeliverRequiresAssignedCarrier(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())
	l := mustCreate(t, svc)

	if _, err := svc.Accept(context.Background(), carrierActor, l.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	other := Actor{ID: "carrier-2", Role: auth.RoleCarrier}
	if _, err := svc.Deliver(context.Background(), other, l.ID); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned for other carrier, got %v", err)
	}

	delivered, err := svc.Deliver(context.Background(), carrierActor, l.ID)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.Status != StatusDelivered {
		t.Fatalf("expected delivered, got %s", delivered.Status)
	}
}

func TestService_LifecycleMonotonic(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())
	l := mustCreate(t, svc)
	ctx := context.Background()

	if _, err := svc.Accept(ctx, carrierActor, l.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Deliver(ctx, carrierActor, l.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	// No operation moves a delivered load anywhere.
	if _, err := svc.Accept(ctx, Actor{ID: "carrier-9", Role: auth.RoleCarrier}, l.ID); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen accepting delivered load, got %v", err)
	}
	if _, err := svc.Deliver(ctx, carrierActor, l.ID); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen delivering twice, got %v", err)
	}

	final, _ := svc.Get(ctx, l.ID)
	if final.Status != StatusDelivered {
		t.Fatalf("status moved backward to %s", final.Status)
	}
}

func TestService_PublishLocation(t *testing.T) {
	svc, broadcast, _ := newTestService(newFakeRepo())
	l := mustCreate(t, svc)
	ctx := context.Background()

	// Nobody assigned yet.
	if _, err := svc.PublishLocation(ctx, carrierActor.ID, l.ID, 32.7, -96.8); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned before accept, got %v", err)
	}

	if _, err := svc.Accept(ctx, carrierActor, l.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := svc.PublishLocation(ctx, carrierActor.ID, l.ID, 999, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad latitude, got %v", err)
	}

	if _, err := svc.PublishLocation(ctx, "carrier-2", l.ID, 32.7, -96.8); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned for other carrier, got %v", err)
	}

	updated, err := svc.PublishLocation(ctx, carrierActor.ID, l.ID, 32.7, -96.8)
	if err != nil {
		t.Fatalf("publish location: %v", err)
	}
	if updated.Status != StatusInTransit {
		t.Fatalf("expected first location publish to move load to in_transit, got %s", updated.Status)
	}
	if updated.CarrierLat == nil || *updated.CarrierLat != 32.7 {
		t.Fatalf("expected persisted latitude 32.7, got %v", updated.CarrierLat)
	}

	events := broadcast.locations()
	if len(events) != 1 || events[0].loadID != l.ID {
		t.Fatalf("expected one location broadcast for %s, got %v", l.ID, events)
	}

	// Last write wins.
	updated, err = svc.PublishLocation(ctx, carrierActor.ID, l.ID, 33.1, -97.0)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if *updated.CarrierLat != 33.1 {
		t.Fatalf("expected latest latitude 33.1, got %v", *updated.CarrierLat)
	}
}

func TestService_BoardListsOpenAndOwn(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())
	ctx := context.Background()

	first := mustCreate(t, svc)
	mustCreate(t, svc)
	if _, err := svc.Accept(ctx, carrierActor, first.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	board, err := svc.Board(ctx, carrierActor)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected open load plus own accepted load, got %d", len(board))
	}

	other := Actor{ID: "carrier-2", Role: auth.RoleCarrier}
	board, err = svc.Board(ctx, other)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("expected only the open load for another carrier, got %d", len(board))
	}
}

func TestService_PostedIsShipperOnly(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())

	if _, err := svc.Posted(context.Background(), carrierActor, PostedFilters{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestService_AcceptedPagination(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l := mustCreate(t, svc)
		if _, err := svc.Accept(ctx, carrierActor, l.ID); err != nil {
			t.Fatalf("accept %d: %v", i, err)
		}
	}

	page, err := svc.Accepted(ctx, carrierActor, 1, 2)
	if err != nil {
		t.Fatalf("accepted: %v", err)
	}
	if len(page.Loads) != 2 {
		t.Fatalf("expected 2 loads on page, got %d", len(page.Loads))
	}
	if page.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", page.TotalPages)
	}
	if page.CurrentPage != 1 {
		t.Fatalf("expected current page 1, got %d", page.CurrentPage)
	}
}

func validCreateParams() CreateParams {
	return CreateParams{
		Title:         "Widgets",
		Origin:        "Dallas",
		Destination:   "Houston",
		EquipmentType: "Dry Van",
		Rate:          500,
	}
}

func mustCreate(t *testing.T, svc *Service) Load {
	t.Helper()
	l, err := svc.Create(context.Background(), shipperActor, validCreateParams())
	if err != nil {
		t.Fatalf("create load: %v", err)
	}
	return l
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	posted []Load
	locs   []locationEvent
}

type locationEvent struct {
	loadID   string
	lat, lng float64
}

func (f *fakeBroadcaster) LoadPosted(l Load) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, l)
}

func (f *fakeBroadcaster) CarrierLocation(loadID string, lat, lng float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locs = append(f.locs, locationEvent{loadID: loadID, lat: lat, lng: lng})
}

func (f *fakeBroadcaster) postedLoads() []Load {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Load(nil), f.posted...)
}

func (f *fakeBroadcaster) locations() []locationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]locationEvent(nil), f.locs...)
}

type fakeObserver struct {
	accepted chan Load
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{accepted: make(chan Load, 8)}
}

func (f *fakeObserver) LoadAccepted(ctx context.Context, l Load) {
	f.accepted <- l
}

// fakeRepo is an in-memory Repository whose conditional transitions mirror
// the SQL guards in PGRepository.
type fakeRepo struct {
	mu     sync.Mutex
	loads  map[string]Load
	nextID int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{loads: make(map[string]Load)}
}

func (f *fakeRepo) Create(ctx context.Context, l Load) (Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	if l.ID == "" {
		l.ID = fmt.Sprintf("load-%d", f.nextID)
	}
	l.Status = StatusOpen
	l.CreatedAt = time.Now().UTC()
	l.UpdatedAt = l.CreatedAt
	f.loads[l.ID] = l
	return l, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.loads[id]
	if !ok {
		return Load{}, ErrNotFound
	}
	return l, nil
}

func (f *fakeRepo) AcceptOpen(ctx context.Context, loadID, carrierID string) (Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.loads[loadID]
	if !ok {
		return Load{}, ErrNotFound
	}
	if l.Status != StatusOpen {
		return Load{}, ErrNotOpen
	}
	l.Status = StatusAccepted
	l.AcceptedBy = &carrierID
	l.UpdatedAt = time.Now().UTC()
	f.loads[loadID] = l
	return l, nil
}

func (f *fakeRepo) MarkDelivered(ctx context.Context, loadID, carrierID string) (Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.loads[loadID]
	if !ok {
		return Load{}, ErrNotFound
	}
	if l.AcceptedBy == nil || *l.AcceptedBy != carrierID {
		return Load{}, ErrNotAssigned
	}
	if !l.Status.IsActive() {
		return Load{}, ErrNotOpen
	}
	l.Status = StatusDelivered
	l.UpdatedAt = time.Now().UTC()
	f.loads[loadID] = l
	return l, nil
}

func (f *fakeRepo) UpdateCarrierLocation(ctx context.Context, loadID, carrierID string, lat, lng float64) (Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.loads[loadID]
	if !ok {
		return Load{}, ErrNotFound
	}
	if l.AcceptedBy == nil || *l.AcceptedBy != carrierID {
		return Load{}, ErrNotAssigned
	}
	if !l.Status.IsActive() {
		return Load{}, ErrNotOpen
	}
	if l.Status == StatusAccepted {
		l.Status = StatusInTransit
	}
	l.CarrierLat = &lat
	l.CarrierLng = &lng
	l.UpdatedAt = time.Now().UTC()
	f.loads[loadID] = l
	return l, nil
}

func (f *fakeRepo) ListBoard(ctx context.Context, carrierID string) ([]Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []Load{}
	for _, l := range f.loads {
		if l.Status == StatusOpen || (l.AcceptedBy != nil && *l.AcceptedBy == carrierID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListPosted(ctx context.Context, shipperID string, filters PostedFilters) ([]Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []Load{}
	for _, l := range f.loads {
		if l.PostedBy != shipperID {
			continue
		}
		if filters.Status != "" && l.Status != filters.Status {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeRepo) ListAccepted(ctx context.Context, carrierID string, page, pageSize int) ([]Load, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := []Load{}
	for _, l := range f.loads {
		if l.AcceptedBy != nil && *l.AcceptedBy == carrierID {
			all = append(all, l)
		}
	}

	start := (page - 1) * pageSize
	if start > len(all) {
		return []Load{}, len(all), nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (f *fakeRepo) ListOpenByOrigin(ctx context.Context, origin string) ([]Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []Load{}
	for _, l := range f.loads {
		if l.Status == StatusOpen && l.Origin == origin {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetActiveForCarrier(ctx context.Context, carrierID string) (Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, l := range f.loads {
		if l.AcceptedBy != nil && *l.AcceptedBy == carrierID && l.Status.IsActive() {
			return l, nil
		}
	}
	return Load{}, ErrNotFound
}
