package main

import (
	"log"

	"github.com/jeremyhahn/go-acme-ca/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
