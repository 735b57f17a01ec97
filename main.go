package main

import "github.com/denysvitali/tweetvault/cmd"

func main() {
	cmd.Execute()
}
