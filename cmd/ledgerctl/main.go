// Package main provides ledgerctl, the operator CLI for the Library Ledger.
package main

import "github.com/libraryledger/ledger-server/cmd/ledgerctl/commands"

func main() {
	commands.Execute()
}
