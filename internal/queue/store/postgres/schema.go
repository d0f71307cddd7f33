package postgres

type table struct {
	name string
	ddl  []string
}

// Tables in creation order; dropped in reverse.
var schema = []table{
	{
		name: "queues",
		ddl: []string{`
CREATE TABLE IF NOT EXISTS queues (
  name                          TEXT PRIMARY KEY,
  default_visibility_timeout_ms BIGINT NOT NULL CHECK (default_visibility_timeout_ms >= 0)
);`},
	},
	{
		name: "messages",
		ddl: []string{`
CREATE TABLE IF NOT EXISTS messages (
  id                    TEXT PRIMARY KEY,
  queue_name            TEXT NOT NULL REFERENCES queues (name) ON DELETE CASCADE,
  content               TEXT NOT NULL,
  visibility_timeout_ms BIGINT NOT NULL CHECK (visibility_timeout_ms >= 0),
  last_delivered_ms     BIGINT NOT NULL DEFAULT 0
);`,
			`CREATE INDEX IF NOT EXISTS messages_queue_pending ON messages (queue_name, last_delivered_ms);`,
		},
	},
}

const sqlTableExists = `
SELECT EXISTS (
  SELECT 1 FROM information_schema.tables
  WHERE table_schema = current_schema() AND table_name = $1
);`
