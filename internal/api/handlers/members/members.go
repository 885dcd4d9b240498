package members

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"kittybook/internal/api/handlers"
	"kittybook/internal/ledger"
	"kittybook/internal/models"
	"kittybook/internal/repositories/sqlconnect"
	"kittybook/pkg/utils"
)

// FUNC TO ADD A MEMBER TO AN ACTIVITY
func CreateMemberHandler(w http.ResponseWriter, r *http.Request) {
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
		ActivityID int    `json:"activity_id" validate:"required,gt=0"`
		Name       string `json:"name" validate:"required"`
		Email      string `json:"email" validate:"omitempty,email"`
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

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM activities WHERE id = ?)", req.ActivityID).Scan(&exists)
	if err != nil {
		utils.WriteError(w, "failed to verify activity", http.StatusInternalServerError)
		return
	}
	if !exists {
		utils.WriteError(w, "activity not found", http.StatusNotFound)
		return
	}

	var email interface{}
	if req.Email != "" {
		email = req.Email
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO members (activity_id, name, email, created_at)
		VALUES (?, ?, ?, ?)
	`, req.ActivityID, req.Name, email, time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		utils.Logger.Errorf("failed to create member: %v", err)
		utils.WriteError(w, "failed to create member", http.StatusInternalServerError)
		return
	}

	memberID, _ := res.LastInsertId()

	utils.WriteJSON(w, map[string]interface{}{
		"status":  "success",
		"message": "member added",
		"data": map[string]interface{}{
			"member_id":   memberID,
			"activity_id": req.ActivityID,
			"name":        req.Name,
		},
	})
}

// FUNC TO GET ONE MEMBER WITH RECENT TRANSACTIONS
func GetMemberByIDHandler(w http.ResponseWriter, r *http.Request) {
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

	idStr := r.PathValue("id")
	memberID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid member ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var member models.Member
	err = db.QueryRowContext(ctx, `
		SELECT id, activity_id, name, email, balance, created_at FROM members WHERE id = ?
	`, memberID).Scan(&member.ID, &member.ActivityID, &member.Name, &member.Email, &member.Balance, &member.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			utils.WriteError(w, "member not found", http.StatusNotFound)
			return
		}
		utils.WriteError(w, "failed to retrieve member", http.StatusInternalServerError)
		return
	}

	page, limit := utils.GetPaginationParams(r)
	offset := (page - 1) * limit

	query := `
		SELECT t.id, t.activity_id, t.member_id, t.batch_id, t.kind, t.amount, t.batch_total, t.weight, t.description, t.created_at
		FROM transactions t
		WHERE t.member_id = ?
	`
	query = utils.AddSorting(r, query)
	query += " LIMIT ? OFFSET ?"

	rows, err := db.QueryContext(ctx, query, memberID, limit, offset)
	if err != nil {
		utils.Logger.Errorf("error fetching transactions: %v", err)
		utils.WriteError(w, "error fetching transactions", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		err = rows.Scan(&t.ID, &t.ActivityID, &t.MemberID, &t.BatchID, &t.Kind, &t.Amount,
			&t.BatchTotal, &t.Weight, &t.Description, &t.CreatedAt)
		if err != nil {
			utils.Logger.Errorf("error scanning transaction: %v", err)
			utils.WriteError(w, "error fetching transactions", http.StatusInternalServerError)
			return
		}
		transactions = append(transactions, t)
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"member":       member,
			"transactions": transactions,
			"page":         page,
			"page_size":    limit,
		},
	})
}

// FUNC TO REMOVE A MEMBER
func DeleteMemberHandler(w http.ResponseWriter, r *http.Request) {
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
	memberID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid member ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := db.ExecContext(ctx, "DELETE FROM members WHERE id = ?", memberID)
	if err != nil {
		utils.Logger.Errorf("error deleting member: %v", err)
		utils.WriteError(w, "error deleting member", http.StatusInternalServerError)
		return
	}

	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		utils.WriteError(w, "member not found or already deleted", http.StatusNotFound)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":  "success",
		"message": "member removed",
	})
}

// FUNC TO RECORD A DEPOSIT FOR A MEMBER
func DepositHandler(w http.ResponseWriter, r *http.Request) {
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

	idStr := r.PathValue("id")
	memberID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid member ID", http.StatusBadRequest)
		return
	}

	type request struct {
		Amount decimal.Decimal `json:"amount"`
		Note   string          `json:"note"`
	}

	var req request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := ledger.New(db).Deposit(ctx, memberID, req.Amount, req.Note)
	if err != nil {
		switch err {
		case ledger.ErrNotFound:
			utils.WriteError(w, "member not found", http.StatusNotFound)
		case ledger.ErrInvalidAmount:
			utils.WriteError(w, "amount must be greater than 0", http.StatusBadRequest)
		default:
			utils.Logger.Errorf("deposit failed: %v", err)
			utils.WriteError(w, "failed to record deposit", http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":  "success",
		"message": "deposit recorded",
		"data": map[string]interface{}{
			"member_id": memberID,
			"amount":    req.Amount,
			"reference": result.Reference,
		},
	})
}
