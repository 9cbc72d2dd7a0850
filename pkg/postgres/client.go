// Package postgres opens the lib/pq connection pool the document source reads
// through.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
)

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens a pool sized from cfg and verifies it with a ping.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{DB: db, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging postgres: %w", err)
	}
	return nil
}

// DocumentsTable is the table the document source reads.
func (c *Client) DocumentsTable() string {
	return c.cfg.DocumentsTable
}

func (c *Client) Close() error {
	return c.DB.Close()
}
