package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"history-ranking-service/internal/domain"
)

// IdentityResolver maps users.id to users.user_id.
type IdentityResolver struct {
	pool *pgxpool.Pool
}

func NewIdentityResolver(pool *pgxpool.Pool) *IdentityResolver {
	return &IdentityResolver{pool: pool}
}

func (r *IdentityResolver) ResolveDisplayNames(ctx context.Context, ids []domain.AccountID) (map[domain.AccountID]domain.DisplayHandle, error) {
	out := make(map[domain.AccountID]domain.DisplayHandle, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, string(id))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id FROM users WHERE id = ANY($1) AND user_id IS NOT NULL`,
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve display names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, handle string
		if err := rows.Scan(&id, &handle); err != nil {
			return nil, fmt.Errorf("scan display name: %w", err)
		}
		out[domain.AccountID(id)] = domain.DisplayHandle(handle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve display names: %w", err)
	}
	return out, nil
}
