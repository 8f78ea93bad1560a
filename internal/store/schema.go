package store

// schema is applied with CREATE TABLE IF NOT EXISTS on every open, the
// same additive-migration-free approach as untoldecay-BeadsLog's sqlite
// schema: a single literal SQL string run once at startup.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	backend_type TEXT NOT NULL CHECK(backend_type IN ('local', 'hosted')),
	repo_path TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL DEFAULT '',
	repo TEXT NOT NULL DEFAULT '',
	pr_number INTEGER NOT NULL DEFAULT 0,
	auth_token_ref TEXT NOT NULL DEFAULT '',
	project TEXT NOT NULL,
	branch TEXT NOT NULL,
	target_branch TEXT NOT NULL,
	registered_files TEXT NOT NULL DEFAULT '{}',
	manual_additions TEXT NOT NULL DEFAULT '[]',
	manual_removals TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	parent_id TEXT REFERENCES comments(id) ON DELETE CASCADE,
	file TEXT NOT NULL,
	line INTEGER NOT NULL,
	side TEXT NOT NULL DEFAULT 'head',
	line_content TEXT NOT NULL DEFAULT '',
	line_content_hash TEXT NOT NULL DEFAULT '',
	context_before TEXT NOT NULL DEFAULT '',
	context_after TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL,
	resolved INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comments_session ON comments(session_id);
CREATE INDEX IF NOT EXISTS idx_comments_parent ON comments(parent_id);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	api_key TEXT UNIQUE
);

CREATE TABLE IF NOT EXISTS oauth_clients (
	id TEXT PRIMARY KEY,
	secret TEXT NOT NULL,
	redirect_uris TEXT NOT NULL DEFAULT '[]',
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS oauth_authorizations (
	code TEXT PRIMARY KEY,
	client_id TEXT NOT NULL REFERENCES oauth_clients(id) ON DELETE CASCADE,
	redirect_uri TEXT NOT NULL,
	code_challenge TEXT NOT NULL,
	code_challenge_method TEXT NOT NULL,
	user_id TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	token TEXT PRIMARY KEY,
	kind TEXT NOT NULL CHECK(kind IN ('access', 'refresh')),
	client_id TEXT NOT NULL REFERENCES oauth_clients(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	expires_at TEXT NOT NULL,
	paired_token TEXT NOT NULL DEFAULT '',
	revoked INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_oauth_tokens_paired ON oauth_tokens(paired_token);
`
