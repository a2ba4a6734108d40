package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/katyfelkner/fairseq-server/pkg/client"
)

const prompt = "translate> "

func main() {
	addr := flag.String("addr", "http://localhost:6060", "translation server base URL")
	flag.Parse()

	cli := client.New(*addr)
	fmt.Printf("Translation CLI (target: %s)\n", *addr)
	if err := cli.Health(context.Background()); err != nil {
		fmt.Printf("Connection failed: %v\n", err)
		fmt.Println("Tip: ensure the server is running (e.g. go run ./cmd/server -backend <url>).")
		return
	}
	fmt.Println("Connected! Type a sentence to translate, or 'exit'.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		}

		start := time.Now()
		out, err := cli.Translate(context.Background(), []string{line})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Printf("%s (%v)\n", out[0], time.Since(start))
	}
}
