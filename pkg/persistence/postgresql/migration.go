package postgresql

// migrations returns the ordered schema migrations for the investigations store.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS investigations (
				id VARCHAR(255) PRIMARY KEY,
				query TEXT NOT NULL,
				unit_refs JSONB NOT NULL DEFAULT '[]',
				status VARCHAR(50) NOT NULL DEFAULT 'pending',
				analysis_status VARCHAR(50),
				risk_override TEXT,
				report TEXT,
				harvested_count INTEGER NOT NULL DEFAULT 0,
				evidence_count INTEGER NOT NULL DEFAULT 0,
				finding_count INTEGER NOT NULL DEFAULT 0,
				failure_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_investigations_status ON investigations(status);
			CREATE INDEX IF NOT EXISTS idx_investigations_created_at ON investigations(created_at DESC);
		`,
	}
}
