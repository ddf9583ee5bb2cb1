package main

import (
	"os"

	_ "net/http/pprof"
)

func main() {
	// pick plan from the environment variable
	plan := os.Getenv("PLAN")
	if plan == "churn" {
		planChurn()
	} else if plan == "iterate" {
		planIterate()
	} else if plan == "freecache" {
		planFreecache()
	} else {
		panic("invalid plan")
	}
}
