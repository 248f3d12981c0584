package main

import "github.com/spec-kit/token-bridge/internal/keytool"

func main() {
	keytool.InitAndExecute()
}
