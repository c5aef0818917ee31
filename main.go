package main

import "github.com/Mohsinsiddi/auctionbridge/cmd"

func main() {
	cmd.Execute()
}
