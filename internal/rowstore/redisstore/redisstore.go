// Package redisstore keeps sheets in Redis. Each sheet is a header string and
// a list holding one JSON-encoded row per element.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/config"
	"github.com/Additional-Code/tabula/internal/rowstore"
)

// Backend implements rowstore.Backend on a Redis client.
type Backend struct {
	client *goredis.Client
	prefix string
}

var _ rowstore.Backend = (*Backend)(nil)

// New wraps an existing client. Keys are namespaced under prefix.
func New(client *goredis.Client, prefix string) *Backend {
	return &Backend{client: client, prefix: prefix}
}

// Open dials Redis with cfg and ties the client to the Fx lifecycle.
func Open(lc fx.Lifecycle, cfg config.Redis, logger *zap.Logger) *Backend {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			logger.Info("redis row store connected", zap.String("addr", cfg.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("closing redis row store")
			return client.Close()
		},
	})

	return New(client, cfg.KeyPrefix)
}

// Ping checks the connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// EnsureSheet sets the header row unless the sheet already has one.
func (b *Backend) EnsureSheet(ctx context.Context, name string, headers []string) (rowstore.Sheet, error) {
	encoded, err := json.Marshal(headers)
	if err != nil {
		return rowstore.Sheet{}, err
	}
	created, err := b.client.SetNX(ctx, b.headersKey(name), encoded, 0).Result()
	if err != nil {
		return rowstore.Sheet{}, err
	}
	if created {
		return rowstore.Sheet{Name: name, Headers: append([]string(nil), headers...), Created: true}, nil
	}
	stored, err := b.headers(ctx, name)
	if err != nil {
		return rowstore.Sheet{}, err
	}
	return rowstore.Sheet{Name: name, Headers: stored}, nil
}

// Rows returns the header row followed by every data row.
func (b *Backend) Rows(ctx context.Context, name string) ([][]any, error) {
	headers, err := b.headers(ctx, name)
	if err != nil {
		return nil, err
	}
	items, err := b.client.LRange(ctx, b.rowsKey(name), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	rows := make([][]any, 0, len(items)+1)
	rows = append(rows, header)
	for i, item := range items {
		decoded, err := rowstore.DecodeJSON(item)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i+rowstore.HeaderRow+1, err)
		}
		cells, ok := decoded.([]any)
		if !ok {
			return nil, fmt.Errorf("%s row %d: cells are %T", name, i+rowstore.HeaderRow+1, decoded)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// WriteRow replaces the row at position.
func (b *Backend) WriteRow(ctx context.Context, name string, position int, cells []any) error {
	index, err := b.index(ctx, name, position)
	if err != nil {
		return err
	}
	encoded, err := rowstore.MarshalText(cells)
	if err != nil {
		return err
	}
	err = b.client.LSet(ctx, b.rowsKey(name), index, encoded).Err()
	if err != nil && strings.Contains(err.Error(), "out of range") {
		return fmt.Errorf("%s row %d: %w", name, position, rowstore.ErrRowOutOfRange)
	}
	return err
}

// AppendRow pushes cells onto the end of the sheet.
func (b *Backend) AppendRow(ctx context.Context, name string, cells []any) error {
	if err := b.mustExist(ctx, name); err != nil {
		return err
	}
	encoded, err := rowstore.MarshalText(cells)
	if err != nil {
		return err
	}
	return b.client.RPush(ctx, b.rowsKey(name), encoded).Err()
}

// DeleteRow removes the row at position. The row is first overwritten with a
// unique marker and the marker is then removed, both in one MULTI block.
func (b *Backend) DeleteRow(ctx context.Context, name string, position int) error {
	index, err := b.index(ctx, name, position)
	if err != nil {
		return err
	}
	marker := "tabula:deleted:" + uuid.NewString()
	key := b.rowsKey(name)

	pipe := b.client.TxPipeline()
	set := pipe.LSet(ctx, key, index, marker)
	pipe.LRem(ctx, key, 1, marker)
	if _, err := pipe.Exec(ctx); err != nil {
		if set.Err() != nil && strings.Contains(set.Err().Error(), "out of range") {
			return fmt.Errorf("%s row %d: %w", name, position, rowstore.ErrRowOutOfRange)
		}
		return err
	}
	return nil
}

func (b *Backend) index(ctx context.Context, name string, position int) (int64, error) {
	if err := b.mustExist(ctx, name); err != nil {
		return 0, err
	}
	length, err := b.client.LLen(ctx, b.rowsKey(name)).Result()
	if err != nil {
		return 0, err
	}
	index := int64(position - rowstore.HeaderRow - 1)
	if index < 0 || index >= length {
		return 0, fmt.Errorf("%s row %d: %w", name, position, rowstore.ErrRowOutOfRange)
	}
	return index, nil
}

func (b *Backend) mustExist(ctx context.Context, name string) error {
	n, err := b.client.Exists(ctx, b.headersKey(name)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", name, rowstore.ErrSheetNotFound)
	}
	return nil
}

func (b *Backend) headers(ctx context.Context, name string) ([]string, error) {
	raw, err := b.client.Get(ctx, b.headersKey(name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%s: %w", name, rowstore.ErrSheetNotFound)
	}
	if err != nil {
		return nil, err
	}
	var headers []string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil, fmt.Errorf("%s headers: %w", name, err)
	}
	return headers, nil
}

func (b *Backend) headersKey(name string) string {
	return b.prefix + ":sheet:" + name + ":headers"
}

func (b *Backend) rowsKey(name string) string {
	return b.prefix + ":sheet:" + name + ":rows"
}
