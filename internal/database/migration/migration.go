package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_tenants",
		SQL: `CREATE TABLE IF NOT EXISTS tenants (
  id                 UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  name               TEXT        NOT NULL,
  plan               TEXT        NOT NULL DEFAULT 'trial',
  personal           BOOLEAN     NOT NULL DEFAULT true,
  seat_count         INT         NOT NULL DEFAULT 1 CHECK (seat_count >= 1),
  storage_used_bytes BIGINT      NOT NULL DEFAULT 0 CHECK (storage_used_bytes >= 0),
  units_used_month   BIGINT      NOT NULL DEFAULT 0 CHECK (units_used_month >= 0),
  units_used_today   BIGINT      NOT NULL DEFAULT 0 CHECK (units_used_today >= 0),
  bonus_units        BIGINT      NOT NULL DEFAULT 0 CHECK (bonus_units >= 0),
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_memberships",
		SQL: `CREATE TABLE IF NOT EXISTS memberships (
  user_id    UUID        NOT NULL,
  tenant_id  UUID        NOT NULL REFERENCES tenants (id),
  role       TEXT        NOT NULL DEFAULT 'member',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (user_id, tenant_id)
);`,
	},
	{
		Name: "create_table_folders",
		SQL: `CREATE TABLE IF NOT EXISTS folders (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id  UUID        NOT NULL REFERENCES tenants (id),
  name       TEXT        NOT NULL,
  parent_id  UUID        REFERENCES folders (id),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id             UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id      UUID        NOT NULL REFERENCES tenants (id),
  name           TEXT        NOT NULL,
  storage_key    TEXT        NOT NULL UNIQUE,
  size_bytes     BIGINT      NOT NULL CHECK (size_bytes >= 0),
  content_type   TEXT        NOT NULL,
  folder_id      UUID        REFERENCES folders (id),
  ocr_status     TEXT        NOT NULL DEFAULT 'pending',
  upload_status  TEXT        NOT NULL DEFAULT 'pending',
  uploaded_by_id UUID        NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_documents_tenant_folder",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_tenant_folder ON documents (tenant_id, folder_id);`,
	},
	{
		Name: "create_table_portals",
		SQL: `CREATE TABLE IF NOT EXISTS portals (
  id            UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id     UUID        NOT NULL REFERENCES tenants (id),
  name          TEXT        NOT NULL,
  contact_name  TEXT        NOT NULL,
  contact_email TEXT        NOT NULL,
  pin_hash      TEXT,
  expires_at    TIMESTAMPTZ,
  status        TEXT        NOT NULL DEFAULT 'active',
  created_by_id UUID        NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_portal_request_items",
		SQL: `CREATE TABLE IF NOT EXISTS portal_request_items (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  portal_id  UUID        NOT NULL REFERENCES portals (id),
  label      TEXT        NOT NULL,
  required   BOOLEAN     NOT NULL DEFAULT false,
  order_key  INT         NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_portal_submissions",
		SQL: `CREATE TABLE IF NOT EXISTS portal_submissions (
  id           UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  item_id      UUID        NOT NULL REFERENCES portal_request_items (id),
  portal_id    UUID        NOT NULL REFERENCES portals (id),
  document_id  UUID        NOT NULL,
  document_key TEXT        NOT NULL,
  file_name    TEXT        NOT NULL,
  size_bytes   BIGINT      NOT NULL CHECK (size_bytes >= 0),
  ocr_status   TEXT        NOT NULL DEFAULT 'pending',
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_portal_submissions_item",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_portal_submissions_item ON portal_submissions (item_id);`,
	},
	{
		Name: "create_table_share_links",
		SQL: `CREATE TABLE IF NOT EXISTS share_links (
  token          TEXT        PRIMARY KEY,
  tenant_id      UUID        NOT NULL REFERENCES tenants (id),
  pin_hash       TEXT,
  expires_at     TIMESTAMPTZ,
  max_downloads  INT         CHECK (max_downloads > 0),
  download_count INT         NOT NULL DEFAULT 0 CHECK (download_count >= 0),
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_share_link_documents",
		SQL: `CREATE TABLE IF NOT EXISTS share_link_documents (
  token       TEXT NOT NULL REFERENCES share_links (token),
  document_id UUID NOT NULL,
  PRIMARY KEY (token, document_id)
);`,
	},
	{
		Name: "create_table_ledger_entries",
		SQL: `CREATE TABLE IF NOT EXISTS ledger_entries (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id  UUID        NOT NULL REFERENCES tenants (id),
  kind       TEXT        NOT NULL,
  units      BIGINT      NOT NULL CHECK (units >= 0),
  reason     TEXT        NOT NULL,
  cycle_key  TEXT        NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_ledger_entries_tenant_cycle",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_ledger_entries_tenant_cycle ON ledger_entries (tenant_id, cycle_key);`,
	},
	{
		// Top-up reasons are idempotency keys: one auto top-up per cycle,
		// one credit per checkout session.
		Name: "create_unique_index_ledger_topup_reason",
		SQL: `CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_entries_topup_reason
	ON ledger_entries (tenant_id, cycle_key, reason) WHERE kind = 'topup';`,
	},
	{
		Name: "create_table_auto_topup_settings",
		SQL: `CREATE TABLE IF NOT EXISTS auto_topup_settings (
  tenant_id         UUID    PRIMARY KEY REFERENCES tenants (id),
  enabled           BOOLEAN NOT NULL DEFAULT false,
  pack_id           TEXT    NOT NULL DEFAULT '',
  threshold_percent INT     NOT NULL DEFAULT 10,
  max_per_month     INT     NOT NULL DEFAULT 3,
  used_this_month   INT     NOT NULL DEFAULT 0
);`,
	},
}

// EnsureMigrated checks if the 'tenants' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, loc *time.Location, dbHost string) error {
	start := time.Now()

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.tenants') IS NOT NULL"
	err := db.QueryRowContext(ctx, query).Scan(&exists)
	if err != nil {
		logJSON(loc, map[string]any{
			"component":     "database",
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logJSON(loc, map[string]any{
			"component":   "database",
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_start",
		"status":    "in_progress",
		"db_host":   dbHost,
	})

	for _, step := range steps {
		stepStart := time.Now()
		_, err := db.ExecContext(ctx, step.SQL)
		if err != nil {
			logJSON(loc, map[string]any{
				"component":        "database",
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logJSON(loc, map[string]any{
			"component":        "database",
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	logJSON(loc, map[string]any{
		"component":   "database",
		"event":       "db_migration_success",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

func logJSON(loc *time.Location, data map[string]any) {
	data["ts"] = time.Now().In(loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal migration log: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
