package charges

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"kittybook/internal/api/handlers"
	"kittybook/internal/ledger"
	"kittybook/internal/repositories/sqlconnect"
	"kittybook/pkg/utils"
)

// participant carries one member's extra count: guests brought for a
// split-cost activity, games played for a per-use activity. Exactly one of
// the two fields is meaningful per activity kind.
type participant struct {
	MemberID int `json:"member_id" validate:"required,gt=0"`
	Guests   int `json:"guests" validate:"gte=0"`
	Games    int `json:"games" validate:"gte=0"`
}

func participantMap(list []participant) map[int]int {
	m := make(map[int]int, len(list))
	for _, p := range list {
		m[p.MemberID] = p.Guests + p.Games
	}
	return m
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch err {
	case ledger.ErrNotFound:
		utils.WriteError(w, "not found", http.StatusNotFound)
	case ledger.ErrNotExpense:
		utils.WriteError(w, "transaction is not an active expense", http.StatusBadRequest)
	case ledger.ErrAlreadyVoided:
		utils.WriteError(w, "transaction already voided", http.StatusConflict)
	case ledger.ErrWrongActivity:
		utils.WriteError(w, "participant does not belong to this activity", http.StatusBadRequest)
	case ledger.ErrInvalidAmount:
		utils.WriteError(w, "amount must be positive", http.StatusBadRequest)
	default:
		utils.Logger.Errorf("ledger operation failed: %v", err)
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
	}
}

// FUNC TO RECORD A CHARGE BATCH
func RecordChargeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.WriteError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	db := sqlconnect.DB
	if db == nil {
		utils.Logger.Error("DB is not initialized")
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	type request struct {
		ActivityID   int             `json:"activity_id" validate:"required,gt=0"`
		Label        string          `json:"label" validate:"required"`
		Total        decimal.Decimal `json:"total"`
		Participants []participant   `json:"participants" validate:"required,min=1,dive"`
	}

	var req request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := handlers.ValidateStruct(req); err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, err := ledger.New(db).RecordCharge(ctx, ledger.ChargeInput{
		ActivityID:   req.ActivityID,
		Label:        req.Label,
		Total:        req.Total,
		Participants: participantMap(req.Participants),
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	warnings := append(result.Warnings, lowBalanceWarnings(ctx, db, req.ActivityID)...)

	utils.WriteJSON(w, map[string]interface{}{
		"status":   "success",
		"message":  fmt.Sprintf("charge recorded across %d participant(s)", len(result.Shares)),
		"data":     result,
		"warnings": warnings,
	})
}

// lowBalanceWarnings reports members of the activity whose balance dropped
// below the activity's alert threshold; the daily cron job emails them, this
// surfaces the same condition to the caller immediately.
func lowBalanceWarnings(ctx context.Context, db *sql.DB, activityID int) []string {
	rows, err := db.QueryContext(ctx, `
		SELECT m.name, m.balance
		FROM members m
		JOIN activities a ON m.activity_id = a.id
		WHERE m.activity_id = ? AND a.alert_threshold > 0 AND m.balance < a.alert_threshold
	`, activityID)
	if err != nil {
		utils.Logger.Errorf("failed to check low balances: %v", err)
		return nil
	}
	defer rows.Close()

	var warnings []string
	for rows.Next() {
		var name string
		var balance decimal.Decimal
		if err := rows.Scan(&name, &balance); err != nil {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s is below the alert threshold (balance %s)", name, balance.StringFixed(2)))
	}
	return warnings
}

// FUNC TO LIST TRANSACTIONS FOR AN ACTIVITY
func ListChargesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.WriteError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	db := sqlconnect.DB
	if db == nil {
		utils.Logger.Error("DB is not initialized")
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	idStr := r.PathValue("activity_id")
	activityID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid activity ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var exists bool
	err = db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM activities WHERE id = ?)", activityID).Scan(&exists)
	if err != nil {
		utils.WriteError(w, "failed to verify activity", http.StatusInternalServerError)
		return
	}
	if !exists {
		utils.WriteError(w, "activity not found", http.StatusNotFound)
		return
	}

	page, limit := utils.GetPaginationParams(r)
	offset := (page - 1) * limit

	query := `
		SELECT t.id, t.member_id, m.name, t.batch_id, t.kind, t.amount, t.description, t.created_at
		FROM transactions t
		JOIN members m ON t.member_id = m.id
		WHERE t.activity_id = ?
	`
	query = utils.AddSorting(r, query)
	query += " LIMIT ? OFFSET ?"

	rows, err := db.QueryContext(ctx, query, activityID, limit, offset)
	if err != nil {
		utils.Logger.Errorf("error fetching transactions: %v", err)
		utils.WriteError(w, "error fetching transactions", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	type entry struct {
		ID          int             `json:"id"`
		MemberID    int             `json:"member_id"`
		MemberName  string          `json:"member_name"`
		BatchID     sql.NullString  `json:"batch_id"`
		Kind        string          `json:"kind"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		CreatedAt   sql.NullString  `json:"created_at"`
	}

	var entries []entry
	for rows.Next() {
		var e entry
		err = rows.Scan(&e.ID, &e.MemberID, &e.MemberName, &e.BatchID, &e.Kind, &e.Amount, &e.Description, &e.CreatedAt)
		if err != nil {
			utils.Logger.Errorf("error scanning transaction: %v", err)
			utils.WriteError(w, "error fetching transactions", http.StatusInternalServerError)
			return
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		utils.WriteError(w, "error finalizing transactions read", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":       "success",
		"activity_id":  activityID,
		"count":        len(entries),
		"page":         page,
		"page_size":    limit,
		"transactions": entries,
	})
}

// FUNC TO GET ONE BATCH WITH RECOVERED ALLOCATION PARAMETERS
func GetBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.WriteError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	db := sqlconnect.DB
	if db == nil {
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	batchID := r.PathValue("batch_id")
	if batchID == "" {
		utils.WriteError(w, "invalid batch ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, info, err := ledger.New(db).Batch(ctx, batchID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"batch":        info,
			"transactions": rows,
		},
	})
}

// FUNC TO EDIT A BATCH (NEW TOTAL AND/OR PARTICIPANTS)
func EditBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		utils.WriteError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	db := sqlconnect.DB
	if db == nil {
		utils.Logger.Error("DB is not initialized")
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	batchID := r.PathValue("batch_id")
	if batchID == "" {
		utils.WriteError(w, "invalid batch ID", http.StatusBadRequest)
		return
	}

	type request struct {
		Total        *decimal.Decimal `json:"total"`
		Participants []participant    `json:"participants" validate:"omitempty,dive"`
	}

	var req request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := handlers.ValidateStruct(req); err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// nil participants means "keep the current membership".
	var participants map[int]int
	if req.Participants != nil {
		participants = participantMap(req.Participants)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, err := ledger.New(db).EditBatch(ctx, batchID, req.Total, participants)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":   "success",
		"message":  "batch reconciled",
		"data":     result,
		"warnings": result.Warnings,
	})
}

// FUNC TO VOID ONE TRANSACTION IN PLACE
func VoidTransactionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.WriteError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	db := sqlconnect.DB
	if db == nil {
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	idStr := r.PathValue("id")
	txID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid transaction ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := ledger.New(db).VoidTransaction(ctx, txID); err != nil {
		writeLedgerError(w, err)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":  "success",
		"message": "transaction voided",
	})
}

// FUNC TO REMOVE ONE PARTICIPANT FROM A BATCH AND REDISTRIBUTE
func RemoveFromBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		utils.WriteError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	db := sqlconnect.DB
	if db == nil {
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	idStr := r.PathValue("id")
	txID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid transaction ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, err := ledger.New(db).RemoveFromBatch(ctx, txID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":   "success",
		"message":  "participant removed from batch",
		"data":     result,
		"warnings": result.Warnings,
	})
}

// FUNC TO GET PER-MEMBER BALANCE SUMMARY FOR AN ACTIVITY
func ActivitySummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.WriteError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	db := sqlconnect.DB
	if db == nil {
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	idStr := r.PathValue("activity_id")
	activityID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid activity ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var activityName string
	err = db.QueryRowContext(ctx, "SELECT name FROM activities WHERE id = ?", activityID).Scan(&activityName)
	if err != nil {
		if err == sql.ErrNoRows {
			utils.WriteError(w, "activity not found", http.StatusNotFound)
			return
		}
		utils.WriteError(w, "failed to fetch activity", http.StatusInternalServerError)
		return
	}

	query := `
		SELECT m.id, m.name, m.balance,
			COALESCE(SUM(CASE WHEN t.kind = 'expense' THEN -t.amount ELSE 0 END), 0) AS charged,
			COALESCE(SUM(CASE WHEN t.kind = 'deposit' THEN t.amount ELSE 0 END), 0) AS deposited
		FROM members m
		LEFT JOIN transactions t ON t.member_id = m.id
		WHERE m.activity_id = ?
		GROUP BY m.id, m.name, m.balance
		ORDER BY m.name
	`
	rows, err := db.QueryContext(ctx, query, activityID)
	if err != nil {
		utils.WriteError(w, "failed to fetch activity summary", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	type memberSummary struct {
		MemberID  int             `json:"member_id"`
		Name      string          `json:"name"`
		Balance   decimal.Decimal `json:"balance"`
		Charged   decimal.Decimal `json:"charged"`
		Deposited decimal.Decimal `json:"deposited"`
	}

	var summaries []memberSummary
	for rows.Next() {
		var s memberSummary
		if err := rows.Scan(&s.MemberID, &s.Name, &s.Balance, &s.Charged, &s.Deposited); err != nil {
			utils.Logger.Errorf("error scanning summary row: %v", err)
			continue
		}
		summaries = append(summaries, s)
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"activity": map[string]interface{}{
				"id":   activityID,
				"name": activityName,
			},
			"members": summaries,
		},
	})
}
