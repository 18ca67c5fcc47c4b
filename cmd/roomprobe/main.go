// Command roomprobe load-tests the study room signaling socket. It logs in,
// opens several sockets into one room and exchanges signals between them.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"studyhub/internal/notifications"

	"github.com/gorilla/websocket"
)

// Metrics tracks the probe results.
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	Joined               int64
	SignalsSent          int64
	SignalsReceived      int64
	PeersSeen            int64
	ServerErrors         int64
	LatencyMicrosTotal   int64
}

var metrics Metrics

type probePayload struct {
	Type   string `json:"type"`
	Seq    int64  `json:"seq"`
	SentAt int64  `json:"sent_at"`
}

type probeClient struct {
	api      string
	token    string
	roomID   string
	id       int
	interval time.Duration

	mu    sync.Mutex
	peers map[string]struct{}
	self  string
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	email := flag.String("email", "admin@example.com", "Probe user email")
	password := flag.String("password", "password123", "Probe user password")
	roomID := flag.String("room", "", "Existing room id (a new room is created when empty)")
	sockets := flag.Int("sockets", 4, "Sockets to open in the room")
	interval := flag.Duration("interval", 2*time.Second, "Signal interval per socket")
	duration := flag.Duration("duration", 30*time.Second, "Probe duration")
	flag.Parse()

	api := "http://" + *host
	log.Printf("Probing %s with %d sockets for %v", *host, *sockets, *duration)

	token, err := login(api, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	room := *roomID
	if room == "" {
		room, err = createRoom(api, token, *sockets)
		if err != nil {
			log.Fatalf("Create room failed: %v", err)
		}
		log.Printf("Created room %s", room)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < *sockets; i++ {
		pc := &probeClient{
			api:      api,
			token:    token,
			roomID:   room,
			id:       i,
			interval: *interval,
			peers:    make(map[string]struct{}),
		}
		wg.Add(1)
		go pc.run(*host, stop, &wg)
		time.Sleep(50 * time.Millisecond)
	}

	select {
	case <-time.After(*duration):
		log.Println("Probe duration reached")
	case <-interrupt:
		log.Println("Interrupted")
	}

	close(stop)
	wg.Wait()
	printMetrics()
}

func postJSON(endpoint, token string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func login(api, email, password string) (string, error) {
	var res struct {
		Token string `json:"token"`
	}
	err := postJSON(api+"/api/auth/login", "", map[string]string{"email": email, "password": password}, &res)
	return res.Token, err
}

func createRoom(api, token string, capacity int) (string, error) {
	var res struct {
		RoomID string `json:"room_id"`
	}
	err := postJSON(api+"/api/study-rooms", token, map[string]any{
		"title":            "roomprobe " + time.Now().Format(time.Kitchen),
		"subject":          "load test",
		"max_participants": capacity,
	}, &res)
	return res.RoomID, err
}

func issueTicket(api, token string) (string, error) {
	var res struct {
		Ticket string `json:"ticket"`
	}
	err := postJSON(api+"/api/ws/ticket", token, struct{}{}, &res)
	return res.Ticket, err
}

func (pc *probeClient) run(host string, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	ticket, err := issueTicket(pc.api, pc.token)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		log.Printf("socket %d: ticket: %v", pc.id, err)
		return
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws/study", RawQuery: "ticket=" + url.QueryEscape(ticket)}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		log.Printf("socket %d: dial: %v", pc.id, err)
		return
	}
	defer func() { _ = conn.Close() }()
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	// gorilla connections allow one concurrent writer.
	var writeMu sync.Mutex
	write := func(ev notifications.RoomEvent) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(ev)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			pc.handle(raw, write)
		}
	}()

	ticker := time.NewTicker(pc.interval)
	defer ticker.Stop()
	var seq int64
	for {
		select {
		case <-stop:
			_ = write(notifications.RoomEvent{Event: notifications.EventLeaveRoom})
			writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMu.Unlock()
			return
		case <-done:
			return
		case <-ticker.C:
			target := pc.randomPeer()
			if target == "" {
				continue
			}
			seq++
			payload, _ := json.Marshal(probePayload{Type: "probe", Seq: seq, SentAt: time.Now().UnixMicro()})
			if err := write(notifications.RoomEvent{Event: notifications.EventSignal, To: target, Payload: payload}); err != nil {
				log.Printf("socket %d: write: %v", pc.id, err)
				return
			}
			atomic.AddInt64(&metrics.SignalsSent, 1)
		}
	}
}

func (pc *probeClient) handle(raw []byte, write func(notifications.RoomEvent) error) {
	var ev struct {
		notifications.RoomEvent
		Members []struct {
			SocketID string `json:"socket_id"`
		} `json:"members"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}

	switch ev.Event {
	case notifications.EventConnected:
		pc.mu.Lock()
		pc.self = ev.SocketID
		pc.mu.Unlock()
		if err := write(notifications.RoomEvent{Event: notifications.EventJoinRoom, RoomID: pc.roomID}); err != nil {
			log.Printf("socket %d: join: %v", pc.id, err)
		}
	case notifications.EventRoomMembers:
		atomic.AddInt64(&metrics.Joined, 1)
		for _, m := range ev.Members {
			pc.addPeer(m.SocketID)
		}
	case notifications.EventUserConnected:
		pc.addPeer(ev.SocketID)
	case notifications.EventUserDisconnected:
		pc.mu.Lock()
		delete(pc.peers, ev.SocketID)
		pc.mu.Unlock()
	case notifications.EventSignal:
		atomic.AddInt64(&metrics.SignalsReceived, 1)
		var p probePayload
		if json.Unmarshal(ev.Payload, &p) == nil && p.SentAt > 0 {
			atomic.AddInt64(&metrics.LatencyMicrosTotal, time.Now().UnixMicro()-p.SentAt)
		}
	case notifications.EventError:
		atomic.AddInt64(&metrics.ServerErrors, 1)
		log.Printf("socket %d: server error: %s", pc.id, ev.Message)
	}
}

func (pc *probeClient) addPeer(socketID string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if socketID == "" || socketID == pc.self {
		return
	}
	if _, ok := pc.peers[socketID]; !ok {
		pc.peers[socketID] = struct{}{}
		atomic.AddInt64(&metrics.PeersSeen, 1)
	}
}

func (pc *probeClient) randomPeer() string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(pc.peers) == 0 {
		return ""
	}
	n := rand.Intn(len(pc.peers))
	for id := range pc.peers {
		if n == 0 {
			return id
		}
		n--
	}
	return ""
}

func printMetrics() {
	fmt.Println("\nroomprobe results")
	fmt.Printf("  connections: %d attempted, %d ok, %d failed\n",
		metrics.ConnectionsAttempted, metrics.ConnectionsSuccess, metrics.ConnectionsFailed)
	fmt.Printf("  joined:      %d (peers seen %d)\n", metrics.Joined, metrics.PeersSeen)
	fmt.Printf("  signals:     %d sent, %d received\n", metrics.SignalsSent, metrics.SignalsReceived)
	if metrics.SignalsReceived > 0 {
		avg := time.Duration(metrics.LatencyMicrosTotal/metrics.SignalsReceived) * time.Microsecond
		fmt.Printf("  avg latency: %v\n", avg)
	}
	fmt.Printf("  errors:      %d\n", metrics.ServerErrors)
}
