package main

import (
	"log"

	"github.com/irihojaphet/kozi-chatbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
