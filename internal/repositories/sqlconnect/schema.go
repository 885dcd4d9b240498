package sqlconnect

import "database/sql"

// Schema bootstrap runs on startup. Activities must exist before members and
// transactions because of the foreign keys; transactions.batch_id groups the
// rows written by one allocation event.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		kind ENUM('per_use','split') NOT NULL,
		unit_cost DECIMAL(12,4) NOT NULL DEFAULT 0,
		alert_threshold DECIMAL(12,4) NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id INT AUTO_INCREMENT PRIMARY KEY,
		activity_id INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255),
		balance DECIMAL(20,8) NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INT AUTO_INCREMENT PRIMARY KEY,
		activity_id INT NOT NULL,
		member_id INT NOT NULL,
		batch_id CHAR(36),
		kind ENUM('expense','deposit','void') NOT NULL,
		amount DECIMAL(20,8) NOT NULL,
		batch_total DECIMAL(20,8),
		weight INT,
		description VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE,
		FOREIGN KEY (member_id) REFERENCES members(id) ON DELETE CASCADE,
		INDEX idx_transactions_batch_id (batch_id),
		INDEX idx_transactions_member_id (member_id),
		INDEX idx_transactions_activity_created (activity_id, created_at)
	)`,
}

func ensureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
