package journal

// Schema creates both models. Timestamps are stored in UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	pair_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	weekly TEXT,
	weekly_screenshot TEXT,
	weekly_sentiment TEXT,
	daily TEXT,
	daily_screenshot TEXT,
	daily_sentiment TEXT,
	four_hr TEXT,
	four_hr_screenshot TEXT,
	four_hr_sentiment TEXT,
	one_hr TEXT,
	one_hr_screenshot TEXT,
	one_hr_sentiment TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_pair_time ON analyses(pair_id, timestamp);

CREATE TABLE IF NOT EXISTS pair_settings (
	id TEXT PRIMARY KEY,
	pair_id TEXT NOT NULL UNIQUE,
	flag TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// analysisColumns is the select list matching scanAnalysis.
const analysisColumns = `id, pair_id, timestamp,
	weekly, weekly_screenshot, weekly_sentiment,
	daily, daily_screenshot, daily_sentiment,
	four_hr, four_hr_screenshot, four_hr_sentiment,
	one_hr, one_hr_screenshot, one_hr_sentiment,
	created_at, updated_at`
