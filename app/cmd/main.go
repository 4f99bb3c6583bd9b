package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"ragcore/app/server"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	addr := os.Getenv("SERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	s := server.NewServer(addr)
	log.Printf("starting retrieval engine on %s", addr)

	go s.Run()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	sig := <-sigch
	log.Printf("received %s, shutting down listener on %s", sig, addr)
	s.Stop()
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}
}
