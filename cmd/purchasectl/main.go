// Package main содержит утилиту обслуживания покупок: поиск зависших покупок,
// повторную запись на курс и выпуск токенов для ручной проверки API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
