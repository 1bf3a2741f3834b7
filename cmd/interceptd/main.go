// interceptd - HTTP interceptor server and expectation runner
package main

import (
	"os"

	"github.com/getmockd/interceptd/pkg/cli"
)

func main() {
	os.Exit(cli.Main())
}
