package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"loadboard/load"
)

var cities = []string{"Dallas", "Houston", "Austin", "San Antonio", "El Paso", "Memphis"}

func randomCity() string { return cities[rand.Intn(len(cities))] }

func randomRoute() (string, string) {
	origin := randomCity()
	dest := randomCity()
	for dest == origin {
		dest = randomCity()
	}
	return origin, dest
}

// expected reports whether an error is a legitimate loser outcome under
// contention, or a connection severed by the chaos actor, rather than a
// defect.
func expected(err error) bool {
	if errors.Is(err, load.ErrNotFound) ||
		errors.Is(err, load.ErrNotOpen) ||
		errors.Is(err, load.ErrNotAssigned) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57P01" { // admin_shutdown via pg_terminate_backend
		return true
	}
	return pgconn.SafeToRetry(err)
}

// Poster keeps the board stocked with fresh open loads.
func Poster(ctx context.Context, repo load.Repository, shipperID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		origin, dest := randomRoute()
		_, err := repo.Create(ctx, load.Load{
			Title:         fmt.Sprintf("Stress freight %d", rand.Int63()),
			Origin:        origin,
			Destination:   dest,
			EquipmentType: "Dry Van",
			Rate:          float64(500 + rand.Intn(2500)),
			PostedBy:      shipperID,
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("poster create: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// Acceptor races other acceptors for random open loads. Losing the race is
// the expected outcome most of the time.
func Acceptor(ctx context.Context, pool *pgxpool.Pool, repo load.Repository, carrierID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var loadID string
		err := pool.QueryRow(ctx, `SELECT id::text FROM loads WHERE status='open' ORDER BY random() LIMIT 1`).Scan(&loadID)
		if err == nil {
			if _, err := repo.AcceptOpen(ctx, loadID, carrierID); err != nil && !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("acceptor: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Locator streams position reports for the carrier's active load.
func Locator(ctx context.Context, repo load.Repository, carrierID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		active, err := repo.GetActiveForCarrier(ctx, carrierID)
		if err == nil {
			lat := -90 + rand.Float64()*180
			lng := -180 + rand.Float64()*360
			if _, err := repo.UpdateCarrierLocation(ctx, active.ID, carrierID, lat, lng); err != nil && !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("locator: %w", err)
			}
		} else if !expected(err) && ctx.Err() == nil {
			return fmt.Errorf("locator active lookup: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Deliverer occasionally completes the carrier's active load, freeing the
// carrier to race for the next one.
func Deliverer(ctx context.Context, repo load.Repository, carrierID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(3) == 0 {
			active, err := repo.GetActiveForCarrier(ctx, carrierID)
			if err == nil {
				if _, err := repo.MarkDelivered(ctx, active.ID, carrierID); err != nil && !expected(err) && ctx.Err() == nil {
					return fmt.Errorf("deliverer: %w", err)
				}
			} else if !expected(err) && ctx.Err() == nil {
				return fmt.Errorf("deliverer active lookup: %w", err)
			}
		}
		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
}

// Recommender exercises the repositioning read path while writers churn the
// board.
func Recommender(ctx context.Context, repo load.Repository, carrierID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		active, err := repo.GetActiveForCarrier(ctx, carrierID)
		if err == nil {
			if _, err := repo.ListOpenByOrigin(ctx, active.Destination); err != nil && ctx.Err() == nil {
				return fmt.Errorf("recommender list: %w", err)
			}
		} else if !expected(err) && ctx.Err() == nil {
			return fmt.Errorf("recommender active lookup: %w", err)
		}
		time.Sleep(time.Duration(50+rand.Intn(80)) * time.Millisecond)
	}
}
