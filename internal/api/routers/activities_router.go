package routers

import (
	"net/http"

	"kittybook/internal/api/handlers/activities"
)

func activitiesRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/activities/create", activities.CreateActivityHandler)

	mux.HandleFunc("/activities/", activities.GetActivitiesHandler)

	mux.HandleFunc("/activities/{id}", activities.GetActivityByIDHandler)

	mux.HandleFunc("/activities/update/{id}", activities.UpdateActivityHandler)

	mux.HandleFunc("/activities/delete/{id}", activities.DeleteActivityHandler)

	return mux
}
