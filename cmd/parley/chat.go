package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/coder/websocket"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	var (
		url  string
		name string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a chat room from the terminal",
		Long: `Join a chat room from the terminal.

The first line sent claims your name; every following line is a
message. Frames from the room are printed as they arrive.

Examples:
  parley chat --name alice
  parley chat --url ws://chat.example.com/ws`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runChat(url, name)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://127.0.0.1:8080/ws", "Websocket endpoint to dial")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Name to claim on connect (skips the prompt)")

	return cmd
}

func runChat(url, name string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.CloseNow()

	// The claimed name, stored before the claiming frame goes out so the
	// reader can highlight the chatter's own messages.
	var self atomic.Value

	if name = strings.TrimSpace(name); name != "" {
		self.Store(name)
		if err := conn.Write(ctx, websocket.MessageText, []byte(name)); err != nil {
			return fmt.Errorf("claim name: %w", err)
		}
	} else {
		fmt.Println(color.Gray.Render("type your name to join, then chat away"))
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			selfName, _ := self.Load().(string)
			printFrame(string(data), selfName)
		}
	}()

	// Stdin never unblocks on its own, so the pump dies with the process
	// instead of being joined.
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if self.Load() == nil {
				self.Store(line)
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
				return
			}
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	select {
	case <-ctx.Done():
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil
	case err := <-readErr:
		switch status := websocket.CloseStatus(err); {
		case status == websocket.StatusNormalClosure, errors.Is(err, context.Canceled):
			return nil
		case status == websocket.StatusGoingAway:
			fmt.Println(color.Gray.Render("server is shutting down"))
			return nil
		case status == websocket.StatusPolicyViolation:
			return errors.New("rejected by the server")
		default:
			return err
		}
	}
}

// printFrame colors the room's announcements, highlights the chatter's own
// name, and leaves everyone else's chatter plain.
func printFrame(line, self string) {
	switch {
	case line == "Username already taken.":
		fmt.Println(color.Red.Render(line))
	case strings.HasSuffix(line, " joined."):
		fmt.Println(color.Green.Render(line))
	case strings.HasSuffix(line, " left."):
		fmt.Println(color.Yellow.Render(line))
	case self != "" && strings.HasPrefix(line, self+": "):
		fmt.Println(color.Cyan.Render(self) + line[len(self):])
	default:
		fmt.Println(line)
	}
}
