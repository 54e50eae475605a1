package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				id           TEXT PRIMARY KEY,
				created_at   TEXT NOT NULL DEFAULT (datetime('now')),
				last_active  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_conversations_last_active ON conversations (last_active);

			CREATE TABLE messages (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role             TEXT NOT NULL,
				content          TEXT NOT NULL,
				timestamp        TEXT NOT NULL DEFAULT (datetime('now')),
				tool_calls       TEXT
			);

			CREATE INDEX idx_messages_conversation ON messages (conversation_id, id);
		`,
	},
}
