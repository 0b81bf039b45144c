package directory

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the directory schema to the database at databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, MigrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrateURL rewrites a postgres connection URL to the pgx5 scheme used by
// the migrate driver.
func MigrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

// Postgres is a directory backed by the deployments table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a directory over pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Record(ctx context.Context, network string, d deploy.Deployment) error {
	if err := validate(network, d); err != nil {
		return err
	}
	query := `
		INSERT INTO deployments (network, name, address, tx_hash, block_number, deployed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (network, name) DO UPDATE SET
			address = EXCLUDED.address,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			deployed_at = EXCLUDED.deployed_at,
			updated_at = NOW()`

	_, err := p.pool.Exec(ctx, query,
		network,
		d.Name,
		d.Address.Hex(),
		d.TxHash.Hex(),
		int64(d.BlockNumber),
		d.DeployedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert deployment: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, network, name string) (deploy.Deployment, error) {
	query := `
		SELECT name, address, tx_hash, block_number, deployed_at
		FROM deployments
		WHERE network = $1 AND name = $2`

	d, err := scanDeployment(p.pool.QueryRow(ctx, query, network, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return deploy.Deployment{}, fmt.Errorf("%w: %s on %s", ErrNotFound, name, network)
	}
	if err != nil {
		return deploy.Deployment{}, fmt.Errorf("get deployment: %w", err)
	}
	return d, nil
}

func (p *Postgres) List(ctx context.Context, network string) ([]deploy.Deployment, error) {
	query := `
		SELECT name, address, tx_hash, block_number, deployed_at
		FROM deployments
		WHERE network = $1
		ORDER BY name`

	rows, err := p.pool.Query(ctx, query, network)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []deploy.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return out, nil
}

func scanDeployment(row pgx.Row) (deploy.Deployment, error) {
	var (
		d           deploy.Deployment
		address     string
		txHash      string
		blockNumber int64
		deployedAt  time.Time
	)
	if err := row.Scan(&d.Name, &address, &txHash, &blockNumber, &deployedAt); err != nil {
		return deploy.Deployment{}, err
	}
	d.Address = common.HexToAddress(address)
	d.TxHash = common.HexToHash(txHash)
	d.BlockNumber = uint64(blockNumber)
	d.DeployedAt = deployedAt
	return d, nil
}
