// imposterd serves on-demand network test doubles behind a REST management API.
package main

import "github.com/getmockd/imposterd/pkg/cli"

func main() {
	cli.Execute()
}
