package store

// Schema v1. The pipeline writes tracks and files; albums are created by the
// façade or the library scanner and only read here.

var schemaV1SQLite = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS albums (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS tracks (
  id TEXT PRIMARY KEY,
  album_id TEXT NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
  disc INTEGER NOT NULL,
  "index" INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  duration_sec INTEGER,
  UNIQUE (album_id, disc, "index")
)`,
	`CREATE TABLE IF NOT EXISTS files (
  id TEXT PRIMARY KEY,
  track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
  path TEXT NOT NULL UNIQUE CHECK (path <> ''),
  codec TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'NEW',
  duration_sec INTEGER,
  fingerprint TEXT,
  error TEXT,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_files_track_id ON files(track_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_status ON files(status)`,
}

var schemaV1Postgres = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at TIMESTAMPTZ DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS albums (
  id UUID PRIMARY KEY,
  source JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS tracks (
  id UUID PRIMARY KEY,
  album_id UUID NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
  disc INTEGER NOT NULL,
  "index" INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  duration_sec INTEGER,
  UNIQUE (album_id, disc, "index")
)`,
	`CREATE TABLE IF NOT EXISTS files (
  id UUID PRIMARY KEY,
  track_id UUID NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
  path TEXT NOT NULL UNIQUE CHECK (path <> ''),
  codec TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'NEW',
  duration_sec INTEGER,
  fingerprint TEXT,
  error TEXT,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_files_track_id ON files(track_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_status ON files(status)`,
}
