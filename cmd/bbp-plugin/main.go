// Command bbp-plugin runs Benthos with the binary_block processor registered.
package main

import (
	"context"

	"github.com/redpanda-data/benthos/v4/public/service"
)

func main() {
	service.RunCLI(context.Background())
}
