// Project chat CLI - command line client for the project chat service
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/capstonehub/projectchat/clients/go/chatclient"
	"github.com/capstonehub/projectchat/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}
	token := os.Getenv("CHAT_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "CHAT_TOKEN is required")
		os.Exit(1)
	}

	identity := models.User{
		ID:       os.Getenv("CHAT_USER_ID"),
		FullName: os.Getenv("CHAT_USER_NAME"),
		Role:     os.Getenv("CHAT_USER_ROLE"),
	}
	if identity.Role == "" {
		identity.Role = models.RoleStudent
	}

	client := chatclient.NewClient(baseURL, token, identity)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatcli history <project_id>")
			os.Exit(1)
		}
		messages, err := client.FetchHistory(ctx, os.Args[2])
		exitOnError(err)
		for _, msg := range messages {
			printMessage(msg, identity.ID)
		}

	case "unread":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatcli unread <project_id>[,<project_id>...]")
			os.Exit(1)
		}
		count, err := client.UnreadCount(ctx, strings.Split(os.Args[2], ","))
		exitOnError(err)
		fmt.Printf("Unread: %d\n", count)

	case "markread":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatcli markread <project_id>")
			os.Exit(1)
		}
		exitOnError(client.MarkRead(ctx, os.Args[2]))
		fmt.Println("Marked read")

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatcli chat <project_id>")
			os.Exit(1)
		}
		exitOnError(runInteractive(ctx, client, os.Args[2], identity.ID))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// runInteractive opens the live channel and bridges it to the terminal:
// incoming events print as they arrive, stdin lines become messages.
func runInteractive(ctx context.Context, client *chatclient.Client, projectID, selfID string) error {
	ch, err := client.OpenChannel(ctx, projectID)
	if err != nil {
		return err
	}
	defer ch.Close()

	for _, e := range ch.Entries() {
		printMessage(e.ChatMessage, selfID)
	}
	ch.MarkRead()

	go func() {
		for ev := range ch.Events() {
			switch ev := ev.(type) {
			case chatclient.MessageEvent:
				if ev.Message.SenderID != selfID {
					printMessage(ev.Message, selfID)
					ch.MarkRead()
				}
			case chatclient.TypingEvent:
				if ev.Typing {
					fmt.Printf("-- %s is typing --\n", ev.UserName)
				}
			case chatclient.SendResultEvent:
				if ev.Result.Err != nil {
					fmt.Printf("!! send failed: %v (text: %q)\n", ev.Result.Err, ev.Result.Text)
				}
			case chatclient.StateEvent:
				fmt.Printf("-- connection %s --\n", ev.State)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Type a message and press enter. Ctrl-D to quit.")
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := ch.Submit(text); err != nil {
			fmt.Printf("!! %v\n", err)
		}
	}
	return scanner.Err()
}

func printMessage(msg models.ChatMessage, selfID string) {
	ts := msg.CreatedAt.Local().Format("2006-01-02 15:04:05")
	name := msg.SenderName
	if msg.SenderID == selfID {
		name = "me"
	}
	fmt.Printf("[%s] %s: %s\n", ts, name, msg.Body)
}

func usage() {
	fmt.Println(`Project chat CLI

Usage: chatcli <command> [options]

Commands:
  chat <project_id>        Open the live channel
  history <project_id>     Print the message log
  unread <ids>             Count unread messages (comma-separated projects)
  markread <project_id>    Mark a channel read
  help                     Show this help

Environment:
  CHAT_URL        Service base URL (default http://localhost:8081)
  CHAT_TOKEN      Bearer credential (see cmd/mktoken)
  CHAT_USER_ID    Caller's user id
  CHAT_USER_NAME  Caller's display name
  CHAT_USER_ROLE  student or advisor (default student)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
