package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"

	mw "kittybook/internal/api/middlewares"
	"kittybook/internal/api/routers"
	"kittybook/internal/repositories/sqlconnect"
	"kittybook/pkg/cron"
	"kittybook/pkg/utils"

	"github.com/joho/godotenv"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		return
	}

	err = sqlconnect.ConnectDb()
	if err != nil {
		utils.Logger.Fatal("DB connection failed: ", err)
	}

	utils.InitLogger()

	cron.StartCronJob(sqlconnect.DB)

	port := os.Getenv("SERVER_PORT")

	cert := os.Getenv("CERT_FILE")
	key := os.Getenv("KEY_FILE")

	router := routers.MainRouter()
	secureMux := mw.ResponseTimeMiddleware(mw.SecurityHeaders(router))

	server := &http.Server{
		Addr:    port,
		Handler: secureMux,
	}

	fmt.Println("Server is running on port", port)

	if cert != "" && key != "" {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		err = server.ListenAndServeTLS(cert, key)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil {
		log.Fatalln("Error starting the server", err)
	}

}
