// Command tally manages taxonomies, terms and their cached object counts.
package main

import "github.com/mesh-intelligence/tally/internal/cli"

func main() {
	cli.Execute()
}
