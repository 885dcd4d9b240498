package routers

import (
	"net/http"

	"kittybook/internal/api/handlers/charges"
)

func chargesRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/charges/record", charges.RecordChargeHandler)

	mux.HandleFunc("/charges/list/{activity_id}", charges.ListChargesHandler)

	mux.HandleFunc("/charges/summary/{activity_id}", charges.ActivitySummaryHandler)

	mux.HandleFunc("/charges/batch/{batch_id}", charges.GetBatchHandler)

	mux.HandleFunc("/charges/batch/update/{batch_id}", charges.EditBatchHandler)

	mux.HandleFunc("/charges/void/{id}", charges.VoidTransactionHandler)

	mux.HandleFunc("/charges/remove/{id}", charges.RemoveFromBatchHandler)

	return mux
}
