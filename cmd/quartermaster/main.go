// Package main is the entry point for quartermaster, the workstation
// bootstrap tool for the document dashboard: it provisions the local model
// runtime, the required models, the python package set, and the working
// directories, and can serve a health/status HTTP API over the result.
package main

func main() {
	Execute()
}
