package database

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Athletes table: Local athlete accounts and their WHOOP credentials
CREATE TABLE IF NOT EXISTS athletes (
    athlete_id INTEGER PRIMARY KEY AUTOINCREMENT,

    -- WHOOP identity (set when OAuth authorization completes)
    whoop_user_id TEXT UNIQUE,

    -- OAuth tokens (empty access_token means not connected)
    access_token TEXT NOT NULL DEFAULT '',
    refresh_token TEXT NOT NULL DEFAULT '',
    token_expires_at INTEGER NOT NULL DEFAULT 0,

    -- Account state
    is_cutting_weight BOOLEAN NOT NULL DEFAULT 0,

    -- Metadata
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Cycles table: Physiological cycles keyed by the WHOOP cycle id
CREATE TABLE IF NOT EXISTS cycles (
    whoop_id INTEGER PRIMARY KEY,  -- WHOOP cycle ID
    athlete_id INTEGER NOT NULL,
    whoop_user_id INTEGER NOT NULL,

    -- Timestamps from the WHOOP API (unix millis)
    api_created_at INTEGER NOT NULL,
    api_updated_at INTEGER NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER,  -- NULL while the cycle is ongoing
    timezone_offset TEXT NOT NULL,

    -- Scoring
    score_state TEXT NOT NULL,
    score_json TEXT NOT NULL,  -- Nested score object, passed through opaquely

    -- Metadata
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (athlete_id) REFERENCES athletes(athlete_id) ON DELETE CASCADE
);

-- Sleeps table: Sleep activities keyed by the WHOOP sleep UUID
CREATE TABLE IF NOT EXISTS sleeps (
    whoop_id TEXT PRIMARY KEY,  -- WHOOP sleep UUID
    athlete_id INTEGER NOT NULL,
    whoop_user_id INTEGER NOT NULL,
    cycle_id INTEGER,

    api_created_at INTEGER NOT NULL,
    api_updated_at INTEGER NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    timezone_offset TEXT NOT NULL,
    nap BOOLEAN NOT NULL DEFAULT 0,

    score_state TEXT NOT NULL,
    score_json TEXT NOT NULL,

    -- Account flag captured at sync time
    is_cutting_weight BOOLEAN NOT NULL DEFAULT 0,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (athlete_id) REFERENCES athletes(athlete_id) ON DELETE CASCADE
);

-- Recoveries table: Recovery scores keyed by the cycle they belong to
CREATE TABLE IF NOT EXISTS recoveries (
    cycle_id INTEGER PRIMARY KEY,  -- Recovery has no id of its own
    athlete_id INTEGER NOT NULL,
    sleep_id TEXT,
    score_state TEXT NOT NULL,

    -- Flattened score fields (NULL = absent from the score payload)
    user_calibrating BOOLEAN NOT NULL DEFAULT 0,
    recovery_score INTEGER,
    resting_heart_rate INTEGER,
    hrv_rmssd_milli REAL,
    spo2_percentage REAL,
    skin_temp_celsius REAL,

    api_created_at INTEGER NOT NULL,
    api_updated_at INTEGER NOT NULL,

    -- Account flag captured at sync time
    is_cutting_weight BOOLEAN NOT NULL DEFAULT 0,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (athlete_id) REFERENCES athletes(athlete_id) ON DELETE CASCADE
);

-- Workouts table: Workout activities keyed by the WHOOP workout id
CREATE TABLE IF NOT EXISTS workouts (
    whoop_id TEXT PRIMARY KEY,  -- WHOOP workout ID
    athlete_id INTEGER NOT NULL,

    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    timezone_offset TEXT,
    sport_id INTEGER,
    score_state TEXT,

    -- Flattened score fields (NULL = absent from the score payload)
    strain REAL,
    average_heart_rate INTEGER,
    max_heart_rate INTEGER,
    kilojoule REAL,
    percent_recorded REAL,
    distance_meter REAL,
    altitude_gain_meter REAL,
    altitude_change_meter REAL,

    -- Account flag captured at sync time
    is_cutting_weight BOOLEAN NOT NULL DEFAULT 0,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (athlete_id) REFERENCES athletes(athlete_id) ON DELETE CASCADE
);

-- Days table: Derived per-date summaries, recomputed after reconciliation
CREATE TABLE IF NOT EXISTS days (
    athlete_id INTEGER NOT NULL,
    date TEXT NOT NULL,  -- YYYY-MM-DD

    recovery_score INTEGER,
    sleep_efficiency_score INTEGER,
    strain_score REAL,
    is_cutting_weight BOOLEAN NOT NULL DEFAULT 0,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    PRIMARY KEY (athlete_id, date),
    FOREIGN KEY (athlete_id) REFERENCES athletes(athlete_id) ON DELETE CASCADE
);

-- Webhook events table: Audit log of all webhook events received
CREATE TABLE IF NOT EXISTS webhook_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Event metadata
    event_type TEXT NOT NULL,
    whoop_user_id INTEGER NOT NULL,
    resource_id TEXT NOT NULL,
    trace_id TEXT NOT NULL,
    raw_json TEXT NOT NULL,  -- Complete event payload

    -- Processing outcome
    status TEXT NOT NULL,
    error TEXT,

    -- Metadata
    created_at INTEGER NOT NULL
);

-- Sync jobs table: Queue of background sync jobs
CREATE TABLE IF NOT EXISTS sync_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    athlete_id INTEGER NOT NULL,
    job_type TEXT NOT NULL,
    trace_id TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    next_retry_at INTEGER,
    processing_started_at INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),

    FOREIGN KEY (athlete_id) REFERENCES athletes(athlete_id) ON DELETE CASCADE
);

-- Indexes for athletes table
CREATE INDEX IF NOT EXISTS idx_athletes_whoop_user_id ON athletes(whoop_user_id);

-- Indexes for synced resource tables
CREATE INDEX IF NOT EXISTS idx_cycles_athlete_start ON cycles(athlete_id, start_time DESC);
CREATE INDEX IF NOT EXISTS idx_sleeps_athlete_end ON sleeps(athlete_id, end_time DESC);
CREATE INDEX IF NOT EXISTS idx_recoveries_athlete_created ON recoveries(athlete_id, api_created_at DESC);
CREATE INDEX IF NOT EXISTS idx_workouts_athlete_start ON workouts(athlete_id, start_time DESC);

-- Indexes for webhook_events table
CREATE INDEX IF NOT EXISTS idx_webhook_events_user ON webhook_events(whoop_user_id);
CREATE INDEX IF NOT EXISTS idx_webhook_events_created ON webhook_events(created_at DESC);

-- Indexes for sync_jobs table
CREATE INDEX IF NOT EXISTS idx_sync_jobs_ready ON sync_jobs(next_retry_at, processing_started_at);
`
