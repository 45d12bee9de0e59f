// Command bariactl is the operator CLI of baria-go.
package main

import "baria-go/internal/cli"

func main() {
	cli.Execute()
}
