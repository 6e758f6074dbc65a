package main

import (
	"fmt"

	"github.com/etbroker/et/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
