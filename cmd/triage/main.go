// Command triage diagnoses failing changes with a remote diagnosis service.
package main

import "github.com/berth-dev/triage/internal/cli"

func main() {
	cli.Execute()
}
