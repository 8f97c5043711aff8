package main

import (
	"fmt"
	"os"

	"github.com/metroware/equip-ledger/cmd/cli/auth"
	"github.com/metroware/equip-ledger/cmd/cli/equipment"
	"github.com/metroware/equip-ledger/cmd/cli/logs"
	"github.com/metroware/equip-ledger/cmd/cli/root"
)

func main() {
	rootCmd := root.GetRoot()
	auth.InitAuth(rootCmd)
	equipment.InitEquipment(rootCmd)
	logs.InitLogs(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
