// Command copilot is a terminal front end for the SQL copilot: an LLM chat
// that answers questions by calling SQL and Grafana tools.
package main

func main() {
	Execute()
}
