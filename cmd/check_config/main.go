package main

import (
	"fmt"
	"os"

	"github.com/connscope/connscope/pkg/connscope"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("missing argument: filePath")
		os.Exit(1)
	}
	filePath := os.Args[1]
	config, err := connscope.LoadConfig(filePath)

	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Parsed: %#v\n\n", config)

	if err := config.Validate(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	os.Exit(0)
}
