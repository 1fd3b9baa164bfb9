package sqlite

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/modbot/internal/db"
	"github.com/iamwavecut/modbot/internal/infra"
	"github.com/iamwavecut/modbot/resources"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
}

func NewSQLiteClient(dbPath string) *sqliteClient {
	dbx, err := sqlx.Open("sqlite", filepath.Join(infra.GetWorkDir(), dbPath))
	if err != nil {
		log.WithError(err).Fatalln("cant open db")
	}
	dbx.SetMaxOpenConns(42)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	_, _, err = migrate.PlanMigration(dbx.DB, "sqlite3", migrationsSource, migrate.Up, 0)
	if err != nil {
		log.WithError(err).Fatalln("migrate plan failed")
	}

	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		log.WithError(err).WithField("migration", migrationsSource).Fatalln("migrate up failed")
	}
	if n > 0 {
		log.Infof("applied %d migrations!", n)
	}

	return &sqliteClient{db: dbx}
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}

func (c *sqliteClient) GetEscalationStates(ctx context.Context) ([]db.EscalationState, error) {
	var states []db.EscalationState
	err := c.db.SelectContext(ctx, &states,
		"SELECT sender_id, warning_count, strike_count, last_action_kind, last_action_at FROM escalation_states")
	return states, err
}

func (c *sqliteClient) UpsertEscalationState(ctx context.Context, state *db.EscalationState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO escalation_states (sender_id, warning_count, strike_count, last_action_kind, last_action_at)
		VALUES (:sender_id, :warning_count, :strike_count, :last_action_kind, :last_action_at)
		ON CONFLICT(sender_id) DO UPDATE SET
		warning_count=excluded.warning_count,
		strike_count=excluded.strike_count,
		last_action_kind=excluded.last_action_kind,
		last_action_at=excluded.last_action_at;
	`
	return tool.Err(c.db.NamedExecContext(ctx, query, state))
}

func (c *sqliteClient) DeleteEscalationState(ctx context.Context, senderID int64) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM escalation_states WHERE sender_id = ?", senderID)
	return err
}

func (c *sqliteClient) GetSenders(ctx context.Context) ([]db.Sender, error) {
	var senders []db.Sender
	err := c.db.SelectContext(ctx, &senders,
		"SELECT id, first_seen_at, message_count FROM senders")
	return senders, err
}

func (c *sqliteClient) UpsertSender(ctx context.Context, sender *db.Sender) error {
	if err := sender.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO senders (id, first_seen_at, message_count)
		VALUES (:id, :first_seen_at, :message_count)
		ON CONFLICT(id) DO UPDATE SET
		message_count=excluded.message_count;
	`
	return tool.Err(c.db.NamedExecContext(ctx, query, sender))
}

func (c *sqliteClient) AddStrike(ctx context.Context, strike *db.Strike) error {
	query := `
		INSERT INTO strikes (sender_id, group_id, reason, created_at)
		VALUES (:sender_id, :group_id, :reason, :created_at);
	`
	return tool.Err(c.db.NamedExecContext(ctx, query, strike))
}

func (c *sqliteClient) GetStrikeCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := c.db.QueryxContext(ctx,
		"SELECT sender_id, COUNT(*) AS strikes FROM strikes GROUP BY sender_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int64]int{}
	for rows.Next() {
		var senderID int64
		var strikes int
		if err := rows.Scan(&senderID, &strikes); err != nil {
			return nil, err
		}
		counts[senderID] = strikes
	}
	return counts, rows.Err()
}
