// Package main implements the salonrelay CLI.
package main

func main() {
	Execute()
}
