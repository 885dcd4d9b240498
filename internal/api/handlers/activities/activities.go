package activities

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"kittybook/internal/api/handlers"
	"kittybook/internal/models"
	"kittybook/internal/repositories/sqlconnect"
	"kittybook/pkg/utils"
)

// FUNC TO CREATE AN ACTIVITY
func CreateActivityHandler(w http.ResponseWriter, r *http.Request) {
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
		Name           string          `json:"name" validate:"required"`
		Kind           string          `json:"kind" validate:"required,oneof=per_use split"`
		UnitCost       decimal.Decimal `json:"unit_cost"`
		AlertThreshold decimal.Decimal `json:"alert_threshold"`
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
	if req.Kind == models.ActivityKindPerUse && req.UnitCost.LessThanOrEqual(decimal.Zero) {
		utils.WriteError(w, "per-use activities need a positive unit_cost", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := db.ExecContext(ctx, `
		INSERT INTO activities (name, kind, unit_cost, alert_threshold, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, req.Name, req.Kind, req.UnitCost, req.AlertThreshold, time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		utils.Logger.Errorf("failed to create activity: %v", err)
		utils.WriteError(w, "failed to create activity", http.StatusInternalServerError)
		return
	}

	activityID, _ := res.LastInsertId()

	utils.WriteJSON(w, map[string]interface{}{
		"status":  "success",
		"message": "activity created",
		"data": map[string]interface{}{
			"activity_id": activityID,
			"name":        req.Name,
			"kind":        req.Kind,
		},
	})
}

// FUNC TO LIST ALL ACTIVITIES
func GetActivitiesHandler(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT id, name, kind, unit_cost, alert_threshold, created_at
		FROM activities
		ORDER BY created_at DESC
	`)
	if err != nil {
		utils.WriteError(w, "failed to retrieve activities", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.Name, &a.Kind, &a.UnitCost, &a.AlertThreshold, &a.CreatedAt); err != nil {
			utils.Logger.Errorf("error reading activities: %v", err)
			utils.WriteError(w, "error reading activities", http.StatusInternalServerError)
			return
		}
		activities = append(activities, a)
	}
	if err = rows.Err(); err != nil {
		utils.WriteError(w, "error finalizing activities read", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":     "success",
		"count":      len(activities),
		"activities": activities,
	})
}

// FUNC TO GET ONE ACTIVITY WITH MEMBER BALANCES
func GetActivityByIDHandler(w http.ResponseWriter, r *http.Request) {
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
	activityID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid activity ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var activity models.Activity
	err = db.QueryRowContext(ctx, `
		SELECT id, name, kind, unit_cost, alert_threshold, created_at
		FROM activities WHERE id = ?
	`, activityID).Scan(&activity.ID, &activity.Name, &activity.Kind, &activity.UnitCost, &activity.AlertThreshold, &activity.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			utils.WriteError(w, "activity not found", http.StatusNotFound)
			return
		}
		utils.WriteError(w, "failed to retrieve activity", http.StatusInternalServerError)
		return
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, name, balance FROM members WHERE activity_id = ? ORDER BY name
	`, activityID)
	if err != nil {
		utils.WriteError(w, "failed to retrieve members", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	type memberBalance struct {
		ID      int             `json:"id"`
		Name    string          `json:"name"`
		Balance decimal.Decimal `json:"balance"`
	}

	var members []memberBalance
	for rows.Next() {
		var m memberBalance
		if err := rows.Scan(&m.ID, &m.Name, &m.Balance); err != nil {
			utils.Logger.Errorf("error scanning member: %v", err)
			continue
		}
		members = append(members, m)
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"activity": activity,
			"members":  members,
		},
	})
}

// FUNC TO UPDATE AN ACTIVITY
func UpdateActivityHandler(w http.ResponseWriter, r *http.Request) {
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

	idStr := r.PathValue("id")
	activityID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid activity ID", http.StatusBadRequest)
		return
	}

	type request struct {
		Name           *string          `json:"name"`
		UnitCost       *decimal.Decimal `json:"unit_cost"`
		AlertThreshold *decimal.Decimal `json:"alert_threshold"`
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

	var activity models.Activity
	err = db.QueryRowContext(ctx, `
		SELECT id, name, unit_cost, alert_threshold FROM activities WHERE id = ?
	`, activityID).Scan(&activity.ID, &activity.Name, &activity.UnitCost, &activity.AlertThreshold)
	if err != nil {
		if err == sql.ErrNoRows {
			utils.WriteError(w, "activity not found", http.StatusNotFound)
			return
		}
		utils.WriteError(w, "failed to retrieve activity", http.StatusInternalServerError)
		return
	}

	// Kind stays fixed: changing it would reinterpret the weights of every
	// recorded batch.
	if req.Name != nil {
		activity.Name = *req.Name
	}
	if req.UnitCost != nil {
		activity.UnitCost = *req.UnitCost
	}
	if req.AlertThreshold != nil {
		activity.AlertThreshold = *req.AlertThreshold
	}

	_, err = db.ExecContext(ctx, `
		UPDATE activities SET name = ?, unit_cost = ?, alert_threshold = ? WHERE id = ?
	`, activity.Name, activity.UnitCost, activity.AlertThreshold, activityID)
	if err != nil {
		utils.WriteError(w, "error updating activity", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":  "success",
		"message": "activity updated",
		"data":    activity,
	})
}

// FUNC TO DELETE AN ACTIVITY (CASCADES TO MEMBERS AND TRANSACTIONS)
func DeleteActivityHandler(w http.ResponseWriter, r *http.Request) {
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
	activityID, err := strconv.Atoi(idStr)
	if err != nil {
		utils.WriteError(w, "invalid activity ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := db.ExecContext(ctx, "DELETE FROM activities WHERE id = ?", activityID)
	if err != nil {
		utils.Logger.Errorf("error deleting activity: %v", err)
		utils.WriteError(w, "error deleting activity", http.StatusInternalServerError)
		return
	}

	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		utils.WriteError(w, "activity not found or already deleted", http.StatusNotFound)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"status":  "success",
		"message": "activity deleted",
	})
}
