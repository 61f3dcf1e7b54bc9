// Command board manages projects, columns and densely ordered tasks.
package main

import "github.com/mesh-intelligence/boards/internal/cli"

func main() {
	cli.Execute()
}
