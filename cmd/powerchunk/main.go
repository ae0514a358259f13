package main

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	Execute()
}
