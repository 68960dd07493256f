package main

import "github.com/ValentinKolb/s2sgate/cmd"

func main() {
	cmd.Execute()
}
