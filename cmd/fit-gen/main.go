// fit-gen renders a StandardizedActivity JSON document into a FIT file using
// the same generator the enricher engine runs, so artifact output can be
// checked locally before a vendor sees it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pulsesync/server/pkg/domain/fitfile"
	"github.com/pulsesync/server/pkg/types"
)

func main() {
	inputFile := flag.String("input", "", "path to a StandardizedActivity JSON file")
	outputFile := flag.String("output", "output.fit", "path to write the FIT file")
	flag.Parse()

	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*inputFile)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	var activity types.StandardizedActivity
	if err := json.Unmarshal(data, &activity); err != nil {
		log.Fatalf("parse activity JSON: %v", err)
	}

	fitData, err := fitfile.Generate(&activity)
	if err != nil {
		log.Fatalf("generate FIT file: %v", err)
	}

	if err := os.WriteFile(*outputFile, fitData, 0644); err != nil {
		log.Fatalf("write output: %v", err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *outputFile, len(fitData))
}
