package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keyverify/entity"
)

func (s *MySql) SaveProduct(ctx context.Context, p *entity.Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (guild_id, product_name, product_secret, role_id, stock)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE product_secret = VALUES(product_secret),
		 role_id = VALUES(role_id), stock = VALUES(stock)`,
		p.GuildId, p.Name, p.Secret, p.RoleId, p.Stock)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (s *MySql) GetProduct(ctx context.Context, guildId, name string) (*entity.Product, error) {
	var p entity.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT guild_id, product_name, product_secret, role_id, stock
		 FROM products WHERE guild_id = ? AND product_name = ?`,
		guildId, name).Scan(&p.GuildId, &p.Name, &p.Secret, &p.RoleId, &p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (s *MySql) GetProducts(ctx context.Context, guildId string) ([]*entity.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, product_name, product_secret, role_id, stock
		 FROM products WHERE guild_id = ? ORDER BY product_name`,
		guildId)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	var products []*entity.Product
	for rows.Next() {
		var p entity.Product
		if err = rows.Scan(&p.GuildId, &p.Name, &p.Secret, &p.RoleId, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

func (s *MySql) DeleteProduct(ctx context.Context, guildId, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM products WHERE guild_id = ? AND product_name = ?`,
		guildId, name)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySql) SetStock(ctx context.Context, guildId, name string, stock int) error {
	if stock < entity.StockUnlimited {
		stock = 0
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = ? WHERE guild_id = ? AND product_name = ?`,
		stock, guildId, name)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustStock adds delta to the counter, clamping at zero. Unlimited
// products (-1) are left untouched.
func (s *MySql) AdjustStock(ctx context.Context, guildId, name string, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = GREATEST(stock + ?, 0)
		 WHERE guild_id = ? AND product_name = ? AND stock >= 0`,
		delta, guildId, name)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	return nil
}
