package main

import "nft-staking-cli/cmd"

func main() {
	cmd.Execute()
}
