// Command osmpolygon fetches and assembles OpenStreetMap multipolygon
// relations, either as a one-shot CLI or as an HTTP service.
package main

import (
	"github.com/MeKo-Tech/osmpolygon/internal/cmd"
)

func main() {
	cmd.Execute()
}
