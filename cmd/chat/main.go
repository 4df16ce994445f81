package main

import "gemini-chat/internal/commands"

func main() {
	commands.Execute()
}
