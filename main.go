/*
Copyright © 2025 daureny
*/
package main

import (
	"log"

	"github.com/daureny/rag-chatbot-be/cmd"
	"github.com/joho/godotenv"
)

func main() {
	cmd.Execute()
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}
