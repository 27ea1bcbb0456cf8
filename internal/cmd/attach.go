package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var attachHost string

var attachCmd = &cobra.Command{
	Use:   "attach <terminal-id>",
	Short: "Attach the current terminal to a running session",
	Long: `Connects this terminal to a dispatcher session over the WebSocket
bridge. Stdin is put into raw mode and forwarded as PTY input; output
frames are written straight to stdout. Detach with Ctrl-].`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAttach(attachHost, args[0])
	},
}

func init() {
	attachCmd.Flags().StringVar(&attachHost, "host", "localhost:6776", "dispatcher server address")
	rootCmd.AddCommand(attachCmd)
}

// resizeMsg is the control frame the server expects for window changes.
type resizeMsg struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

const detachByte = 0x1d // Ctrl-]

func runAttach(host, terminalID string) error {
	u := url.URL{Scheme: "ws", Host: host, Path: "/v1/terminals/" + terminalID + "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u.String(), err)
	}
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
		sendResize(conn, fd)
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			sendResize(conn, fd)
		}
	}()

	done := make(chan error, 1)
	go func() {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				done <- nil
				return
			}
			if msgType == websocket.BinaryMessage {
				if _, err := os.Stdout.Write(data); err != nil {
					done <- err
					return
				}
			}
		}
	}()

	input := make(chan []byte, 16)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				close(input)
				return
			}
			input <- append([]byte(nil), buf[:n]...)
		}
	}()

	for {
		select {
		case err := <-done:
			return err
		case data, ok := <-input:
			if !ok {
				return nil
			}
			for _, b := range data {
				if b == detachByte {
					return nil
				}
			}
			var frame error
			if len(data) == 1 && data[0] == '\r' {
				frame = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"enter"}`))
			} else {
				frame = conn.WriteMessage(websocket.BinaryMessage, data)
			}
			if frame != nil {
				return frame
			}
		}
	}
}

func sendResize(conn *websocket.Conn, fd int) {
	cols, rows, err := term.GetSize(fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return
	}
	payload, err := json.Marshal(resizeMsg{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, payload)
}
