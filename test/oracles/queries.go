package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_acceptor_matches_status",
			SQL: `SELECT id, status, accepted_by FROM loads
                  WHERE (status = 'open' AND accepted_by IS NOT NULL)
                     OR (status <> 'open' AND accepted_by IS NULL)`,
		},
		{
			Name: "O2_acceptor_is_carrier",
			SQL: `SELECT l.id, u.role FROM loads l
                  JOIN users u ON u.id = l.accepted_by
                  WHERE u.role <> 'carrier'`,
		},
		{
			Name: "O3_location_only_when_assigned",
			SQL: `SELECT id, status FROM loads
                  WHERE (carrier_lat IS NOT NULL OR carrier_lng IS NOT NULL)
                    AND accepted_by IS NULL`,
		},
		{
			Name: "O4_coordinates_in_bounds",
			SQL: `SELECT id, carrier_lat, carrier_lng FROM loads
                  WHERE carrier_lat NOT BETWEEN -90 AND 90
                     OR carrier_lng NOT BETWEEN -180 AND 180`,
		},
		{
			Name: "O5_in_transit_has_position",
			SQL: `SELECT id FROM loads
                  WHERE status = 'in_transit'
                    AND (carrier_lat IS NULL OR carrier_lng IS NULL)`,
		},
		{
			Name: "O6_rate_non_negative",
			SQL:  `SELECT id, rate FROM loads WHERE rate < 0`,
		},
		{
			Name: "O7_timestamps_ordered",
			SQL:  `SELECT id FROM loads WHERE updated_at < created_at`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
