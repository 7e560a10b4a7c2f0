package store

// CurrentSchemaVersion is compared against the persisted meta.schema_version
// row. A mismatch causes Open to create a fresh database in a new file,
// leaving the old file untouched (spec.md §6).
const CurrentSchemaVersion = 1

// schemaDDL is the external contract of the persisted state (spec.md §4.1).
// Kept as a single string constant and applied with one Exec, following
// untoldecay-BeadsLog's internal/storage/sqlite/schema.go convention.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revision (
    db_id  INTEGER PRIMARY KEY,
    rev_id BLOB NOT NULL UNIQUE,
    gdfo   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revision_rev_id ON revision(rev_id);

CREATE TABLE IF NOT EXISTS ghost (
    db_id INTEGER PRIMARY KEY REFERENCES revision(db_id)
);

CREATE TABLE IF NOT EXISTS parent (
    child       INTEGER NOT NULL REFERENCES revision(db_id),
    parent      INTEGER NOT NULL REFERENCES revision(db_id),
    parent_idx  INTEGER NOT NULL,
    UNIQUE(child, parent_idx)
);

CREATE INDEX IF NOT EXISTS idx_parent_child_idx ON parent(child, parent_idx);

CREATE TABLE IF NOT EXISTS dotted_revno (
    tip          INTEGER NOT NULL REFERENCES revision(db_id),
    merged       INTEGER NOT NULL REFERENCES revision(db_id),
    revno        TEXT NOT NULL,
    end_of_merge INTEGER NOT NULL,
    merge_depth  INTEGER NOT NULL,
    dist         INTEGER NOT NULL,
    UNIQUE(tip, merged)
);

CREATE INDEX IF NOT EXISTS idx_dotted_revno_tip ON dotted_revno(tip);
CREATE INDEX IF NOT EXISTS idx_dotted_revno_tip_merged ON dotted_revno(tip, merged);
CREATE INDEX IF NOT EXISTS idx_dotted_revno_tip_revno ON dotted_revno(tip, revno);

CREATE TABLE IF NOT EXISTS mainline_parent_range (
    pkey  INTEGER PRIMARY KEY AUTOINCREMENT,
    head  INTEGER NOT NULL REFERENCES revision(db_id),
    tail  INTEGER,
    count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mainline_parent_range_head ON mainline_parent_range(head);

CREATE TABLE IF NOT EXISTS mainline_parent (
    range    INTEGER NOT NULL REFERENCES mainline_parent_range(pkey),
    revision INTEGER NOT NULL REFERENCES revision(db_id),
    dist     INTEGER NOT NULL,
    UNIQUE(range, dist)
);

CREATE INDEX IF NOT EXISTS idx_mainline_parent_range_dist ON mainline_parent(range, dist);
`
