package routers

import (
	"net/http"
)

func MainRouter() *http.ServeMux {

	mux := http.NewServeMux()

	aRouter := activitiesRouter()
	mux.Handle("/activities/", aRouter)

	mRouter := membersRouter()
	mux.Handle("/members/", mRouter)

	cRouter := chargesRouter()
	mux.Handle("/charges/", cRouter)

	return mux
}
