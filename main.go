package main

import (
	"github.com/joho/godotenv"

	"github.com/mubeen104/uips-attendance/cmd"
)

func main() {
	godotenv.Load()
	cmd.Execute()
}
