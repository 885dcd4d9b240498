package routers

import (
	"net/http"

	"kittybook/internal/api/handlers/members"
)

func membersRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/members/create", members.CreateMemberHandler)

	mux.HandleFunc("/members/{id}", members.GetMemberByIDHandler)

	mux.HandleFunc("/members/delete/{id}", members.DeleteMemberHandler)

	mux.HandleFunc("/members/deposit/{id}", members.DepositHandler)

	return mux
}
