package main

import "github.com/frahmantamala/vip-checkout/cmd"

func main() {
	cmd.Execute()
}
