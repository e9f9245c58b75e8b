package main

import (
	"log"

	"leadfive/services/ledgerd"
)

func main() {
	if err := ledgerd.Main(); err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
}
