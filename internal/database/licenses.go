package database

import (
	"context"
	"fmt"

	"keyverify/entity"
)

func (s *MySql) SaveLicense(ctx context.Context, l *entity.VerifiedLicense) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verified_licenses (user_id, guild_id, product_name, license_key)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE license_key = VALUES(license_key)`,
		l.UserId, l.GuildId, l.ProductName, l.LicenseKey)
	if err != nil {
		return fmt.Errorf("save license: %w", err)
	}
	return nil
}

func (s *MySql) GetLicenses(ctx context.Context, guildId, userId string) ([]*entity.VerifiedLicense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, guild_id, product_name, license_key
		 FROM verified_licenses WHERE guild_id = ? AND user_id = ?`,
		guildId, userId)
	if err != nil {
		return nil, fmt.Errorf("get licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*entity.VerifiedLicense
	for rows.Next() {
		var l entity.VerifiedLicense
		if err = rows.Scan(&l.UserId, &l.GuildId, &l.ProductName, &l.LicenseKey); err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, &l)
	}
	return licenses, rows.Err()
}

// DeleteLicenses removes every license the user holds in the guild,
// used by the blacklist path. Returns the removed records so the
// caller can revoke roles and disable the keys upstream.
func (s *MySql) DeleteLicenses(ctx context.Context, guildId, userId string) ([]*entity.VerifiedLicense, error) {
	licenses, err := s.GetLicenses(ctx, guildId, userId)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM verified_licenses WHERE guild_id = ? AND user_id = ?`,
		guildId, userId)
	if err != nil {
		return nil, fmt.Errorf("delete licenses: %w", err)
	}
	return licenses, nil
}
