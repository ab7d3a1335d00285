// Package database is the record store: MySQL tables for products,
// tickets, counters, verified licenses and persistent UI message
// pointers, all keyed by guild_id. Connections are short-lived pool
// checkouts; no connection is held across a Discord or licensing API
// call.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"keyverify/internal/config"

	"github.com/go-sql-driver/mysql"
)

var ErrNotFound = errors.New("database: record not found")

// ErrTicketExists is returned when the unique (guild_id, user_id) key
// on active_tickets rejects a second concurrent insert.
var ErrTicketExists = errors.New("database: user already has an active ticket")

const duplicateKeyErr = 1062

type MySql struct {
	db *sql.DB
}

func NewSQLClient(conf *config.Config) (*MySql, error) {
	connectionURI := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		conf.Database.UserName, conf.Database.Password, conf.Database.HostName, conf.Database.Port, conf.Database.Database)
	db, err := sql.Open("mysql", connectionURI)
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// try to ping three times with a 30-second interval; wait for a database to start
	for i := 0; i < 3; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		if i == 2 {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		time.Sleep(30 * time.Second)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &MySql{db: db}
	if err = sdb.createTables(); err != nil {
		return nil, err
	}
	return sdb, nil
}

func (s *MySql) Close() {
	_ = s.db.Close()
}

func (s *MySql) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			guild_id VARCHAR(32) NOT NULL,
			product_name VARCHAR(100) NOT NULL,
			product_secret TEXT NOT NULL,
			role_id VARCHAR(32) NOT NULL,
			stock INT NOT NULL DEFAULT -1,
			PRIMARY KEY (guild_id, product_name)
		)`,
		`CREATE TABLE IF NOT EXISTS active_tickets (
			guild_id VARCHAR(32) NOT NULL,
			channel_id VARCHAR(32) NOT NULL,
			user_id VARCHAR(32) NOT NULL,
			product_name VARCHAR(100) NOT NULL DEFAULT '',
			ticket_number BIGINT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (guild_id, channel_id),
			UNIQUE KEY uq_guild_user (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_counters (
			guild_id VARCHAR(32) NOT NULL,
			counter BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (guild_id)
		)`,
		`CREATE TABLE IF NOT EXISTS verified_licenses (
			user_id VARCHAR(32) NOT NULL,
			guild_id VARCHAR(32) NOT NULL,
			product_name VARCHAR(100) NOT NULL,
			license_key TEXT NOT NULL,
			PRIMARY KEY (guild_id, user_id, product_name)
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_boxes (
			guild_id VARCHAR(32) NOT NULL,
			message_id VARCHAR(32) NOT NULL,
			channel_id VARCHAR(32) NOT NULL,
			PRIMARY KEY (guild_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS verification_messages (
			guild_id VARCHAR(32) NOT NULL,
			channel_id VARCHAR(32) NOT NULL,
			message_id VARCHAR(32) NOT NULL,
			PRIMARY KEY (guild_id)
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(32) NOT NULL,
			ticket_category_id VARCHAR(32) NOT NULL DEFAULT '',
			log_channel_id VARCHAR(32) NOT NULL DEFAULT '',
			PRIMARY KEY (guild_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateKeyErr
}
