// Command admissionsctl - операторский CLI: офлайн-прогон распределения по
// файлу снимка и просмотр критериев, выведенных из атрибутов каталога.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
