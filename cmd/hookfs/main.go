package main

import (
	"log"

	"github.com/JakWai01/hookfs/cmd/hookfs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
