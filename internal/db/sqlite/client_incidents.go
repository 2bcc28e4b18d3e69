package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamwavecut/tool"

	"github.com/holyroller/holyroller/internal/db"
)

func (c *sqliteClient) AddRaidIncident(ctx context.Context, incident *db.RaidIncident) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO raid_incidents (
			id, guild_id, detected_at, join_count, lockdown_until,
			lockdown_applied, log_alert_sent, admins_notified, owner_notified
		) VALUES (
			:id, :guild_id, :detected_at, :join_count, :lockdown_until,
			:lockdown_applied, :log_alert_sent, :admins_notified, :owner_notified
		)
	`
	if err := tool.Err(c.db.NamedExecContext(ctx, query, incident)); err != nil {
		return fmt.Errorf("add raid incident for guild %s: %w", incident.GuildID, err)
	}
	return nil
}

func (c *sqliteClient) GetLastRaidIncident(ctx context.Context, guildID string) (*db.RaidIncident, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	incident := &db.RaidIncident{}
	err := c.db.GetContext(ctx, incident, `
		SELECT id, guild_id, detected_at, join_count, lockdown_until,
			lockdown_applied, log_alert_sent, admins_notified, owner_notified
		FROM raid_incidents
		WHERE guild_id = ?
		ORDER BY detected_at DESC
		LIMIT 1
	`, guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("get last raid incident for guild %s: %w", guildID, err)
	}
	return incident, nil
}
