package cron

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"kittybook/pkg/utils"
)

func StartCronJob(db *sql.DB) *cron.Cron {
	c := cron.New()

	// Runs daily at 08:00 — warn members whose balance fell below their
	// activity's alert threshold.
	_, err := c.AddFunc("0 8 * * *", func() {
		if err := SendLowBalanceAlerts(db); err != nil {
			utils.Logger.Errorf("Cron job failed to send low balance alerts: %v", err)
		}
	})
	if err != nil {
		utils.Logger.Errorf("Failed to schedule low balance alert job: %v", err)
	}

	c.Start()
	utils.Logger.Info("Cron jobs started (low balance alerts daily at 08:00)")
	return c
}

// -------------------------------------------------------------
// Email members below their activity's alert threshold
// -------------------------------------------------------------
func SendLowBalanceAlerts(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT m.name, m.email, m.balance, a.name, a.alert_threshold
		FROM members m
		JOIN activities a ON m.activity_id = a.id
		WHERE m.email IS NOT NULL
		  AND a.alert_threshold > 0
		  AND m.balance < a.alert_threshold
	`)
	if err != nil {
		return utils.ErrorHandler(err, "failed to query low balance members")
	}
	defer rows.Close()

	sent := 0
	for rows.Next() {
		var memberName, email, activityName string
		var balance, threshold decimal.Decimal
		if err := rows.Scan(&memberName, &email, &balance, &activityName, &threshold); err != nil {
			utils.ErrorHandler(err, "failed to scan low balance row")
			continue
		}

		if err := utils.SendLowBalanceEmail(email, memberName, activityName, balance.StringFixed(2), threshold.StringFixed(2)); err != nil {
			utils.ErrorHandler(err, "failed to send low balance email to "+email)
			continue
		}
		sent++
	}
	if err := rows.Err(); err != nil {
		return utils.ErrorHandler(err, "failed to read low balance rows")
	}

	utils.Logger.Infof("Low balance sweep complete, %d alert(s) sent", sent)
	return nil
}
