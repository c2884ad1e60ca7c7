package load

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the load does not exist.
	ErrNotFound = errors.New("load: not found")
	// ErrNotOpen signals a conditional transition found the load in a state
	// that does not permit it. This is the expected outcome for the losers
	// of a concurrent accept race.
	ErrNotOpen = errors.New("load: not open")
	// ErrNotAssigned signals the acting carrier is not the load's acceptor,
	// or the load is no longer in an assignable state.
	ErrNotAssigned = errors.New("load: not assigned to carrier")
)

// Repository is the durable store for loads. Race-sensitive transitions are
// expressed as single conditional updates so the store adjudicates
// concurrent attempts.
type Repository interface {
	Create(ctx context.Context, l Load) (Load, error)
	GetByID(ctx context.Context, id string) (Load, error)
	AcceptOpen(ctx context.Context, loadID, carrierID string) (Load, error)
	MarkDelivered(ctx context.Context, loadID, carrierID string) (Load, error)
	UpdateCarrierLocation(ctx context.Context, loadID, carrierID string, lat, lng float64) (Load, error)
	ListBoard(ctx context.Context, carrierID string) ([]Load, error)
	ListPosted(ctx context.Context, shipperID string, filters PostedFilters) ([]Load, error)
	ListAccepted(ctx context.Context, carrierID string, page, pageSize int) ([]Load, int, error)
	ListOpenByOrigin(ctx context.Context, origin string) ([]Load, error)
	GetActiveForCarrier(ctx context.Context, carrierID string) (Load, error)
}

const loadColumns = `id, title, origin, destination, equipment_type, rate, status, posted_by, accepted_by, carrier_lat, carrier_lng, pickup_date, delivery_date, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, l Load) (Load, error) {
	const query = `
		INSERT INTO loads (id, title, origin, destination, equipment_type, rate, posted_by, pickup_date, delivery_date)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + loadColumns

	row := r.pool.QueryRow(ctx, query,
		l.ID,
		l.Title,
		l.Origin,
		l.Destination,
		l.EquipmentType,
		l.Rate,
		l.PostedBy,
		l.PickupDate,
		l.DeliveryDate,
	)
	created, err := scanLoad(row)
	if err != nil {
		return Load{}, fmt.Errorf("load: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Load, error) {
	const query = `SELECT ` + loadColumns + ` FROM loads WHERE id = $1`

	l, err := scanLoad(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Load{}, ErrNotFound
		}
		return Load{}, fmt.Errorf("load: get by id: %w", err)
	}
	return l, nil
}

// AcceptOpen performs the find-and-transition as one conditional update keyed
// on status='open', so exactly one of any number of concurrent acceptors can
// win. A no-match result is classified as ErrNotFound or ErrNotOpen by a
// follow-up probe.
func (r *PGRepository) AcceptOpen(ctx context.Context, loadID, carrierID string) (Load, error) {
	const query = `
		UPDATE loads
		SET status = 'accepted', accepted_by = $2
		WHERE id = $1 AND status = 'open'
		RETURNING ` + loadColumns

	l, err := scanLoad(r.pool.QueryRow(ctx, query, loadID, carrierID))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Load{}, fmt.Errorf("load: accept: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loads WHERE id = $1)`, loadID).Scan(&exists); err != nil {
		return Load{}, fmt.Errorf("load: accept probe: %w", err)
	}
	if !exists {
		return Load{}, ErrNotFound
	}
	return Load{}, ErrNotOpen
}

// MarkDelivered transitions an assigned load to delivered. The update is
// conditional on both the acceptor identity and a deliverable status.
func (r *PGRepository) MarkDelivered(ctx context.Context, loadID, carrierID string) (Load, error) {
	const query = `
		UPDATE loads
		SET status = 'delivered'
		WHERE id = $1 AND accepted_by = $2 AND status IN ('accepted', 'in_transit')
		RETURNING ` + loadColumns

	l, err := scanLoad(r.pool.QueryRow(ctx, query, loadID, carrierID))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Load{}, fmt.Errorf("load: mark delivered: %w", err)
	}
	return Load{}, r.classifyAssignmentMiss(ctx, loadID, carrierID)
}

// UpdateCarrierLocation persists the carrier's last reported position,
// last-write-wins. Only the assigned carrier may report, and the first report
// after acceptance moves the load into in_transit.
func (r *PGRepository) UpdateCarrierLocation(ctx context.Context, loadID, carrierID string, lat, lng float64) (Load, error) {
	const query = `
		UPDATE loads
		SET carrier_lat = $3,
		    carrier_lng = $4,
		    status = CASE WHEN status = 'accepted' THEN 'in_transit'::load_status ELSE status END
		WHERE id = $1 AND accepted_by = $2 AND status IN ('accepted', 'in_transit')
		RETURNING ` + loadColumns

	l, err := scanLoad(r.pool.QueryRow(ctx, query, loadID, carrierID, lat, lng))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Load{}, fmt.Errorf("load: update carrier location: %w", err)
	}
	return Load{}, r.classifyAssignmentMiss(ctx, loadID, carrierID)
}

func (r *PGRepository) classifyAssignmentMiss(ctx context.Context, loadID, carrierID string) error {
	var acceptedBy *string
	err := r.pool.QueryRow(ctx, `SELECT accepted_by::text FROM loads WHERE id = $1`, loadID).Scan(&acceptedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load: classify assignment miss: %w", err)
	}
	if acceptedBy == nil || *acceptedBy != carrierID {
		return ErrNotAssigned
	}
	return ErrNotOpen
}

// ListBoard returns the open pool plus the carrier's own assigned loads.
func (r *PGRepository) ListBoard(ctx context.Context, carrierID string) ([]Load, error) {
	const query = `
		SELECT ` + loadColumns + `
		FROM loads
		WHERE status = 'open' OR accepted_by = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, carrierID)
	if err != nil {
		return nil, fmt.Errorf("load: list board: %w", err)
	}
	defer rows.Close()
	return collectLoads(rows)
}

func (r *PGRepository) ListPosted(ctx context.Context, shipperID string, filters PostedFilters) ([]Load, error) {
	where := []string{"posted_by = $1"}
	args := []any{shipperID}

	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filters.Status)
	}

	sortKey := mapSortKey(filters.SortBy)
	sortOrder := strings.ToUpper(filters.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM loads WHERE %s ORDER BY %s %s`,
		loadColumns, strings.Join(where, " AND "), sortKey, sortOrder)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load: list posted: %w", err)
	}
	defer rows.Close()
	return collectLoads(rows)
}

func (r *PGRepository) ListAccepted(ctx context.Context, carrierID string, page, pageSize int) ([]Load, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	const query = `
		SELECT ` + loadColumns + `
		FROM loads
		WHERE accepted_by = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, carrierID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("load: list accepted: %w", err)
	}
	defer rows.Close()

	loads, err := collectLoads(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM loads WHERE accepted_by = $1`, carrierID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("load: count accepted: %w", err)
	}

	return loads, total, nil
}

// ListOpenByOrigin returns open loads whose origin exactly matches the given
// location string.
func (r *PGRepository) ListOpenByOrigin(ctx context.Context, origin string) ([]Load, error) {
	const query = `
		SELECT ` + loadColumns + `
		FROM loads
		WHERE status = 'open' AND origin = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, origin)
	if err != nil {
		return nil, fmt.Errorf("load: list open by origin: %w", err)
	}
	defer rows.Close()
	return collectLoads(rows)
}

// GetActiveForCarrier returns the carrier's most recently assigned load that
// has not yet been delivered.
func (r *PGRepository) GetActiveForCarrier(ctx context.Context, carrierID string) (Load, error) {
	const query = `
		SELECT ` + loadColumns + `
		FROM loads
		WHERE accepted_by = $1 AND status IN ('accepted', 'in_transit')
		ORDER BY updated_at DESC
		LIMIT 1
	`

	l, err := scanLoad(r.pool.QueryRow(ctx, query, carrierID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Load{}, ErrNotFound
		}
		return Load{}, fmt.Errorf("load: get active for carrier: %w", err)
	}
	return l, nil
}

func collectLoads(rows pgx.Rows) ([]Load, error) {
	loads := []Load{}
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, fmt.Errorf("load: scan: %w", err)
		}
		loads = append(loads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load: iterate: %w", err)
	}
	return loads, nil
}

func scanLoad(row pgx.Row) (Load, error) {
	var l Load
	return l, row.Scan(
		&l.ID,
		&l.Title,
		&l.Origin,
		&l.Destination,
		&l.EquipmentType,
		&l.Rate,
		&l.Status,
		&l.PostedBy,
		&l.AcceptedBy,
		&l.CarrierLat,
		&l.CarrierLng,
		&l.PickupDate,
		&l.DeliveryDate,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
}

func mapSortKey(key string) string {
	switch key {
	case "rate":
		return "rate"
	case "origin":
		return "origin"
	case "destination":
		return "destination"
	case "status":
		return "status"
	case "updatedAt":
		return "updated_at"
	case "createdAt":
		fallthrough
	default:
		return "created_at"
	}
}
