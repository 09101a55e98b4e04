package main

import (
	"log"
	"parklot/server"
)

func main() {

	centralSystem, err := server.NewCentralSystem()
	if err != nil {
		log.Println("central system initialization failed", err)
		return
	}
	centralSystem.Start()

}
