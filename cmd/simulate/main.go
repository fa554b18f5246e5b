// Command simulate races concurrent booking requests against a running
// api-server to demonstrate that every slot is won by at most one booker.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type slotsResponse struct {
	Slots []struct {
		SlotID string `json:"slot_id"`
	} `json:"slots"`
}

type bookRequest struct {
	SlotID     string `json:"slot_id"`
	BookerID   string `json:"booker_id"`
	ReceiverID string `json:"receiver_id"`
}

type metrics struct {
	success  int64
	conflict int64
	errors   int64

	mu      sync.Mutex
	winners map[string]int // slot id -> number of successful bookings
}

func (m *metrics) record(slotID string, status int) {
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.success, 1)
		m.mu.Lock()
		m.winners[slotID]++
		m.mu.Unlock()
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.errors, 1)
	}
}

func main() {
	log.SetFlags(log.LstdFlags)

	apiBase := flag.String("api", "http://localhost:8080", "api-server base URL")
	receiver := flag.String("receiver", "", "user id whose slots are booked")
	bookers := flag.String("bookers", "", "comma-separated booker user ids")
	workers := flag.Int("workers", 8, "concurrent workers")
	maxSlots := flag.Int("max-slots", 20, "number of slots to fight over")
	flag.Parse()

	if *receiver == "" || *bookers == "" {
		log.Fatal("-receiver and -bookers are required")
	}
	bookerIDs := strings.Split(*bookers, ",")

	slotIDs, err := fetchSlots(*apiBase, *receiver, *maxSlots)
	if err != nil {
		log.Fatalf("fetch slots: %v", err)
	}
	if len(slotIDs) == 0 {
		log.Fatal("receiver has no active slots; run the seed and a reconcile first")
	}
	log.Printf("racing %d workers over %d slots", *workers, len(slotIDs))

	m := &metrics{winners: make(map[string]int)}
	client := &http.Client{Timeout: 10 * time.Second}

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for _, slotID := range slotIDs {
				booker := bookerIDs[rng.Intn(len(bookerIDs))]
				status, err := book(client, *apiBase, bookRequest{
					SlotID:     slotID,
					BookerID:   booker,
					ReceiverID: *receiver,
				})
				if err != nil {
					atomic.AddInt64(&m.errors, 1)
					continue
				}
				m.record(slotID, status)
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	fmt.Printf("\n--- simulate results (%s) ---\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("success:  %d\n", m.success)
	fmt.Printf("conflict: %d\n", m.conflict)
	fmt.Printf("errors:   %d\n", m.errors)

	doubles := 0
	for slotID, wins := range m.winners {
		if wins > 1 {
			doubles++
			fmt.Printf("DOUBLE BOOKING on slot %s: %d wins\n", slotID, wins)
		}
	}
	if doubles == 0 {
		fmt.Println("no slot was booked more than once")
	}
}

func fetchSlots(apiBase, receiver string, max int) ([]string, error) {
	resp, err := http.Get(fmt.Sprintf("%s/users/%s/slots", apiBase, receiver))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body slotsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	ids := make([]string, 0, max)
	for _, s := range body.Slots {
		if len(ids) == max {
			break
		}
		ids = append(ids, s.SlotID)
	}
	return ids, nil
}

func book(client *http.Client, apiBase string, req bookRequest) (int, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	resp, err := client.Post(apiBase+"/appointments", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
