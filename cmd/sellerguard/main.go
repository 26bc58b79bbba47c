package main

import (
	"github.com/JakeFAU/sellerguard/cmd"
)

func main() {
	cmd.Execute()
}
