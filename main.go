package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║           PopMart Restock & Checkout Assistant           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner()
	Execute(ctx)
}
