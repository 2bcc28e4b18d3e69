package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iamwavecut/tool"

	"github.com/holyroller/holyroller/internal/db"
	hrerrors "github.com/holyroller/holyroller/internal/errors"
)

type settingRow struct {
	GuildID string `db:"guild_id"`
	Key     string `db:"key"`
	Value   string `db:"value"`
}

func (c *sqliteClient) GetSetting(ctx context.Context, guildID, key string) (string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var value string
	err := c.db.GetContext(ctx, &value, `SELECT value FROM guild_settings WHERE guild_id = ? AND key = ?`, guildID, strings.ToLower(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", db.ErrNotFound
		}
		return "", fmt.Errorf("get setting %s for guild %s: %w", key, guildID, err)
	}
	return value, nil
}

func (c *sqliteClient) SetSetting(ctx context.Context, guildID, key, value string) error {
	key = strings.ToLower(key)
	if !db.IsSettingKey(key) {
		return fmt.Errorf("setting %q: %w", key, hrerrors.ErrInvalidInput)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO guild_settings (guild_id, key, value, updated_at)
		VALUES (:guild_id, :key, :value, datetime('now'))
		ON CONFLICT(guild_id, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if err := tool.Err(c.db.NamedExecContext(ctx, query, settingRow{GuildID: guildID, Key: key, Value: value})); err != nil {
		return fmt.Errorf("set setting %s for guild %s: %w", key, guildID, err)
	}
	return nil
}

func (c *sqliteClient) DeleteSetting(ctx context.Context, guildID, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM guild_settings WHERE guild_id = ? AND key = ?`, guildID, strings.ToLower(key))
	if err != nil {
		return fmt.Errorf("delete setting %s for guild %s: %w", key, guildID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (c *sqliteClient) GetSettings(ctx context.Context, guildID string) (*db.GuildSettings, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var rows []settingRow
	if err := c.db.SelectContext(ctx, &rows, `SELECT guild_id, key, value FROM guild_settings WHERE guild_id = ?`, guildID); err != nil {
		return nil, fmt.Errorf("get settings for guild %s: %w", guildID, err)
	}

	settings := db.DefaultGuildSettings(guildID, "")
	for _, row := range rows {
		settings.Apply(row.Key, row.Value)
	}
	return settings, nil
}

// EnsureGuild stores the prefix row for a guild. With reset the prefix is
// overwritten, otherwise an existing prefix is kept.
func (c *sqliteClient) EnsureGuild(ctx context.Context, guildID, prefix string, reset bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO guild_settings (guild_id, key, value, updated_at)
		VALUES (:guild_id, :key, :value, datetime('now'))
		ON CONFLICT(guild_id, key) DO NOTHING
	`
	if reset {
		query = `
			INSERT INTO guild_settings (guild_id, key, value, updated_at)
			VALUES (:guild_id, :key, :value, datetime('now'))
			ON CONFLICT(guild_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
		`
	}
	if err := tool.Err(c.db.NamedExecContext(ctx, query, settingRow{GuildID: guildID, Key: db.KeyPrefix, Value: prefix})); err != nil {
		return fmt.Errorf("ensure guild %s: %w", guildID, err)
	}
	return nil
}

func (c *sqliteClient) DeleteGuild(ctx context.Context, guildID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete guild %s: %w", guildID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM guild_settings WHERE guild_id = ?`, guildID); err != nil {
		return fmt.Errorf("delete settings of guild %s: %w", guildID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM raid_incidents WHERE guild_id = ?`, guildID); err != nil {
		return fmt.Errorf("delete incidents of guild %s: %w", guildID, err)
	}
	return tx.Commit()
}
