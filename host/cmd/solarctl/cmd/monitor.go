package cmd

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Neurotech-Hub/SOLAR-ControllerV3/host/serial"
)

var monitorListen string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Bridge the serial link to a websocket for live monitoring",
	Long: `monitor opens the master's serial port and serves every line it
receives over a websocket at /stream. Text frames sent by a websocket
client are written to the serial port, so a browser console can drive
the chain directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := serial.DefaultConfig(device)
		cfg.Baud = baud
		port, err := serial.Open(cfg)
		if err != nil {
			return err
		}
		defer port.Close()

		b := newBridge(port)
		go b.readSerial()

		http.HandleFunc("/stream", b.handleStream)
		log.Printf("monitor: listening on %s, serial %s @ %d", monitorListen, device, baud)
		return http.ListenAndServe(monitorListen, nil)
	},
}

// bridge fans serial lines out to every connected websocket client
// and funnels client commands back to the single serial writer.
type bridge struct {
	port serial.Port

	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]chan string
	mu       sync.Mutex

	writeMu sync.Mutex
}

func newBridge(port serial.Port) *bridge {
	return &bridge{
		port:    port,
		clients: make(map[*websocket.Conn]chan string),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// readSerial is the single reader of the port. The port's read timeout
// makes each Read a bounded poll, so a quiet link never wedges it.
func (b *bridge) readSerial() {
	buf := make([]byte, 256)
	var line []byte
	for {
		n, err := b.port.Read(buf)
		if err != nil && err != io.EOF {
			log.Printf("monitor: serial read: %v", err)
			return
		}
		for _, c := range buf[:n] {
			switch c {
			case '\r':
			case '\n':
				if len(line) == 0 {
					continue
				}
				s := string(line)
				line = line[:0]
				if verbose {
					fmt.Println(s)
				}
				b.broadcast(s)
			default:
				line = append(line, c)
			}
		}
	}
}

func (b *bridge) broadcast(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn, ch := range b.clients {
		select {
		case ch <- line:
		default:
			// Slow client, drop the line rather than stall the chain.
			log.Printf("monitor: dropping line for %s", conn.RemoteAddr())
		}
	}
}

func (b *bridge) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: upgrade: %v", err)
		return
	}

	ch := make(chan string, 256)
	b.mu.Lock()
	b.clients[conn] = ch
	b.mu.Unlock()
	log.Printf("monitor: client %s connected", conn.RemoteAddr())

	go b.writePump(conn, ch)
	b.readPump(conn)
}

func (b *bridge) writePump(conn *websocket.Conn, ch chan string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *bridge) readPump(conn *websocket.Conn) {
	defer b.dropClient(conn)
	conn.SetReadLimit(4096)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("monitor: read: %v", err)
			}
			return
		}
		line := strings.TrimSpace(string(msg))
		if line == "" {
			continue
		}
		b.writeMu.Lock()
		_, err = b.port.Write([]byte(line + "\n"))
		b.writeMu.Unlock()
		if err != nil {
			log.Printf("monitor: serial write: %v", err)
			return
		}
	}
}

func (b *bridge) dropClient(conn *websocket.Conn) {
	b.mu.Lock()
	if ch, ok := b.clients[conn]; ok {
		delete(b.clients, conn)
		close(ch)
	}
	b.mu.Unlock()
	conn.Close()
	log.Printf("monitor: client %s disconnected", conn.RemoteAddr())
}

func init() {
	monitorCmd.Flags().StringVar(&monitorListen, "listen", ":8883", "websocket listen address")
	rootCmd.AddCommand(monitorCmd)
}
