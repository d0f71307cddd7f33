package sqlstore

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
)

type errKind int

const (
	errOther errKind = iota
	errDuplicate
	errMissingParent
)

// Dialect captures what differs between the database/sql backends. Both
// supported dialects use "?" placeholders.
type Dialect struct {
	Name string
	// tables in creation order with their DDL.
	tables []table
	// tableExists counts tables with the given name in the current schema.
	tableExists string
	classify    func(error) errKind
}

type table struct {
	name string
	ddl  []string
}

// SQLite targets modernc.org/sqlite.
var SQLite = Dialect{
	Name: "sqlite",
	tables: []table{
		{name: "queues", ddl: []string{`
CREATE TABLE IF NOT EXISTS queues (
  name                          TEXT PRIMARY KEY,
  default_visibility_timeout_ms INTEGER NOT NULL
);`}},
		{name: "messages", ddl: []string{`
CREATE TABLE IF NOT EXISTS messages (
  id                    TEXT PRIMARY KEY,
  queue_name            TEXT NOT NULL REFERENCES queues (name) ON DELETE CASCADE,
  content               TEXT NOT NULL,
  visibility_timeout_ms INTEGER NOT NULL,
  last_delivered_ms     INTEGER NOT NULL DEFAULT 0
);`,
			`CREATE INDEX IF NOT EXISTS messages_queue_pending ON messages (queue_name, last_delivered_ms);`,
		}},
	},
	tableExists: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
	classify:    classifySQLite,
}

// MySQL targets github.com/go-sql-driver/mysql with InnoDB tables.
var MySQL = Dialect{
	Name: "mysql",
	tables: []table{
		{name: "queues", ddl: []string{`
CREATE TABLE IF NOT EXISTS queues (
  name                          VARCHAR(255) NOT NULL PRIMARY KEY,
  default_visibility_timeout_ms BIGINT NOT NULL
) ENGINE=InnoDB`}},
		{name: "messages", ddl: []string{`
CREATE TABLE IF NOT EXISTS messages (
  id                    VARCHAR(255) NOT NULL PRIMARY KEY,
  queue_name            VARCHAR(255) NOT NULL,
  content               LONGTEXT NOT NULL,
  visibility_timeout_ms BIGINT NOT NULL,
  last_delivered_ms     BIGINT NOT NULL DEFAULT 0,
  INDEX messages_queue_pending (queue_name, last_delivered_ms),
  CONSTRAINT messages_queue_fk FOREIGN KEY (queue_name) REFERENCES queues (name) ON DELETE CASCADE
) ENGINE=InnoDB`}},
	},
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
	classify:    classifyMySQL,
}

// Extended result codes from sqlite3.h.
const (
	sqliteConstraintForeignKey = 787
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

func classifySQLite(err error) errKind {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return errOther
	}
	code := sqliteErr.Code()
	switch code {
	case sqliteConstraintForeignKey:
		return errMissingParent
	case sqliteConstraintPrimaryKey, sqliteConstraintUnique:
		return errDuplicate
	}
	return errOther
}

// MySQL server error numbers.
const (
	mysqlDupEntry       = 1062
	mysqlNoReferenceRow = 1452
)

func classifyMySQL(err error) errKind {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return errOther
	}
	switch mysqlErr.Number {
	case mysqlDupEntry:
		return errDuplicate
	case mysqlNoReferenceRow:
		return errMissingParent
	}
	return errOther
}
