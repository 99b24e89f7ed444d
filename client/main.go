package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeJoinRoom    = 101
	MsgTypeCreateTable = 103
	MsgTypeSit         = 104
	MsgTypeStand       = 105
	MsgTypePlayNow     = 106
	MsgTypeSetReady    = 201
	MsgTypeInvite      = 202
	MsgTypeChat        = 205
)

// send frames one message: 2-byte message id, 2-byte length, JSON body.
func send(c *websocket.Conn, msgID uint16, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
		}
	}()

	log.Println("Commands: join <room> <player> | table | sit <table_id> <seat> | stand <table_id>")
	log.Println("          play <room> | ready <table_id> on|off | invite <table_id> <player> | chat <room> <text>")

	lastRoom := ""
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(strings.TrimSpace(text))
			if len(fields) == 0 {
				continue
			}

			var err error
			switch fields[0] {
			case "join":
				if len(fields) < 3 {
					continue
				}
				lastRoom = fields[1]
				err = send(c, MsgTypeJoinRoom, map[string]string{
					"room_id": fields[1], "player_id": fields[2], "name": fields[2],
				})
			case "table":
				err = send(c, MsgTypeCreateTable, map[string]interface{}{
					"room_id": lastRoom, "access_mode": "PUBLIC", "rated": true,
				})
			case "sit":
				if len(fields) < 3 {
					continue
				}
				seat, _ := strconv.Atoi(fields[2])
				err = send(c, MsgTypeSit, map[string]interface{}{
					"table_id": fields[1], "seat": seat,
				})
			case "stand":
				if len(fields) < 2 {
					continue
				}
				err = send(c, MsgTypeStand, map[string]string{"table_id": fields[1]})
			case "play":
				if len(fields) < 2 {
					continue
				}
				err = send(c, MsgTypePlayNow, map[string]string{"room_id": fields[1]})
			case "ready":
				if len(fields) < 3 {
					continue
				}
				err = send(c, MsgTypeSetReady, map[string]interface{}{
					"table_id": fields[1], "ready": fields[2] == "on",
				})
			case "invite":
				if len(fields) < 3 {
					continue
				}
				err = send(c, MsgTypeInvite, map[string]string{
					"table_id": fields[1], "invitee_id": fields[2],
				})
			case "chat":
				if len(fields) < 3 {
					continue
				}
				err = send(c, MsgTypeChat, map[string]string{
					"room_id": fields[1], "body": strings.Join(fields[2:], " "),
				})
			default:
				log.Printf("Unknown command %q", fields[0])
				continue
			}
			if err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
