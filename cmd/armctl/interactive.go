package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robosix/armlink/arm"
)

// shortcuts maps prompt aliases to arm command lines.
var shortcuts = []struct {
	name    string
	command string
}{
	{"home", "G29"},
	{"origin", "G28"},
	{"camera", "G30"},
	{"coords", "T06"},
	{"mos-off", "M04 A0"},
	{"mos-on", "M04 A1"},
	{"factory", "M01"},
}

// runInteractive provides a simple REPL for sending commands to the arm.
func runInteractive(ctx context.Context, sess *arm.Session) int {
	fmt.Println("Enter any arm command (e.g. 'G30', 'G04 T1.0', 'G05 X0 Y0 Z0 A0 B0 C0').")
	fmt.Println("Type 'help' to see shortcuts or 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("arm> ")
		if !scanner.Scan() {
			return 0
		}
		if ctx.Err() != nil {
			fmt.Println("\nStopping controller...")
			return 0
		}

		input := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(input)

		switch lower {
		case "":
			continue
		case "exit", "quit":
			return 0
		case "help":
			fmt.Println("Shortcuts:")
			for _, s := range shortcuts {
				fmt.Printf("  %-7s -> %s\n", s.name, s.command)
			}
			continue
		}

		for _, s := range shortcuts {
			if lower == s.name {
				input = s.command
				break
			}
		}

		resp, err := sess.ExecuteRaw(ctx, input)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			if errors.Is(err, arm.ErrSessionFaulted) || errors.Is(err, arm.ErrLinkFailure) {
				fmt.Println("The connection dropped. Press reset on the arm and re-run the program.")
				return 1
			}
			continue
		}

		fmt.Println(resp.Raw)
	}
}
