// Command demo is an interactive terminal client for a running plauder
// server. It streams answers token by token and walks through the
// confirmation flow when the bot asks for a gated tool.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/plauder-dev/plauder/pkg/api"
)

var (
	serverURL = flag.String("url", "http://localhost:8080", "plauder server URL")
	botName   = flag.String("bot", "assistant", "bot to talk to")
	user      = flag.String("user", "demo", "namespace sent as X-User")
)

var (
	promptColor    = color.New(color.FgGreen, color.Bold)
	assistantColor = color.New(color.FgCyan)
	reasoningColor = color.New(color.FgHiBlack)
	toolColor      = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Connected to %s as %s, talking to bot %s\n", *serverURL, *user, color.CyanString(*botName))
	fmt.Println("Type your message and press Enter. Type 'exit' or press Ctrl+C to quit.")
	fmt.Println()

	chatID := api.NewChatID()
	stdin := bufio.NewScanner(os.Stdin)

	for {
		promptColor.Print("You: ")
		if !stdin.Scan() {
			break
		}
		input := strings.TrimSpace(stdin.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			break
		}

		err := runTurn(ctx, stdin, api.TurnRequest{
			Content: input,
			BotName: *botName,
			ChatID:  chatID,
		})
		if err != nil {
			errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		fmt.Println()
	}
}

func runTurn(ctx context.Context, stdin *bufio.Scanner, req api.TurnRequest) error {
	assistantColor.Printf("%s: ", *botName)
	defer fmt.Println()

	return stream(ctx, "/api/chat/completions", req, func(ev api.StreamEvent) error {
		switch ev.Type {
		case api.EventToken:
			assistantColor.Print(ev.Text)
		case api.EventReasoning:
			reasoningColor.Print(ev.Text)
		case api.EventToolCall:
			fmt.Println()
			toolColor.Printf("[tool call] %s/%s %v\n", ev.Server, ev.Tool, ev.Arguments)
			if ev.NeedsConfirmation {
				return confirmTool(ctx, stdin, ev)
			}
		case api.EventToolResult:
			if ev.IsError {
				errorColor.Printf("[tool error] %s\n", ev.Result)
			} else {
				toolColor.Printf("[tool result] %s\n", ev.Result)
			}
		case api.EventError:
			errorColor.Printf("[error] %s\n", ev.Error.Message)
		}
		return nil
	})
}

// confirmTool asks the user whether a gated tool call may run, and
// executes it through the confirm endpoint on approval.
func confirmTool(ctx context.Context, stdin *bufio.Scanner, ev api.StreamEvent) error {
	toolColor.Printf("The bot wants to run %s/%s. Allow? [y/N] ", ev.Server, ev.Tool)
	if !stdin.Scan() {
		return nil
	}
	answer := strings.ToLower(strings.TrimSpace(stdin.Text()))
	if answer != "y" && answer != "yes" {
		fmt.Println("Skipped.")
		return nil
	}

	return stream(ctx, "/api/tool/confirm", api.ConfirmRequest{
		BotName: *botName,
		Server:  ev.Server,
		Tool:    ev.Tool,
		Args:    ev.Arguments,
	}, func(res api.StreamEvent) error {
		switch res.Type {
		case api.EventMessage:
			toolColor.Printf("[tool result] %s\n", res.Message.Content.Plain())
		case api.EventError:
			errorColor.Printf("[error] %s\n", res.Error.Message)
		}
		return nil
	})
}

// stream posts the request and feeds each SSE event to handle until the
// terminating sentinel.
func stream(ctx context.Context, path string, body any, handle func(api.StreamEvent) error) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *serverURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", *user)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok || payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return nil
		}
		var ev api.StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return fmt.Errorf("parsing event: %w", err)
		}
		if err := handle(ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return fmt.Errorf("%s (%s)", errResp.Error.Message, errResp.Error.Code)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}
