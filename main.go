package main

import "github.com/frahmantamala/membership-portal/cmd"

func main() {
	cmd.Execute()
}
