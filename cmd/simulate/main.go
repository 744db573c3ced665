package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// The simulator hammers a running api-server with concurrent bookings over a
// shared pool of open slots and reports the success/conflict split and
// latency percentiles. Overbooking shows up as more than one success per slot.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	SlotLimit    int
	HorizonWeeks int
}

type slot struct {
	Date        string `json:"date"`
	Start       string `json:"start"`
	End         string `json:"end"`
	StaffID     string `json:"staff_id"`
	PhysicianID string `json:"physician_id"`
	SpecialtyID string `json:"specialty_id"`
	RoomID      string `json:"room_id"`
	CenterID    string `json:"center_id"`
	Occupied    bool   `json:"occupied"`
}

type DataPool struct {
	Slots []slot

	mu     sync.RWMutex
	turnos []uuid.UUID
}

func (dp *DataPool) AddTurno(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.turnos = append(dp.turnos, id)
}

func (dp *DataPool) RandomTurno(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.turnos) == 0 {
		return uuid.Nil, false
	}
	return dp.turnos[rng.Intn(len(dp.turnos))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))

	idx := func(pct int) int {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return i
	}
	return avg, latencies[idx(50)], latencies[idx(95)]
}

type Simulator struct {
	config SimConfig
	pool   *DataPool
	client *http.Client

	booking OperationMetrics
	confirm OperationMetrics
	read    OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		log.Fatal("SIM_WORKERS and SIM_DURATION must be positive")
	}

	log.Printf("config: base=%s duration=%s workers=%d booking=%.2f confirm=%.2f read=%.2f",
		cfg.APIBaseURL, cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ConfirmRatio, cfg.ReadRatio)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	pool, err := sim.loadSlots(context.Background())
	if err != nil {
		log.Fatalf("load slots: %v", err)
	}
	sim.pool = pool
	log.Printf("loaded %d open slots", len(pool.Slots))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 2000),
		HorizonWeeks: getInt("SIM_HORIZON_WEEKS", 2),
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func (s *Simulator) loadSlots(ctx context.Context) (*DataPool, error) {
	url := fmt.Sprintf("%s/api/v1/slots?horizon_weeks=%d&limit=%d",
		s.config.APIBaseURL, s.config.HorizonWeeks, s.config.SlotLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("slots endpoint returned %d: %s", resp.StatusCode, body)
	}

	var all []slot
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, err
	}

	pool := &DataPool{}
	for _, sl := range all {
		if !sl.Occupied {
			pool.Slots = append(pool.Slots, sl)
		}
	}
	if len(pool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots available, seed the database first")
	}
	return pool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("running for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			default:
				s.doRead(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	body, _ := json.Marshal(map[string]string{
		"date":         sl.Date,
		"start":        sl.Start,
		"end":          sl.End,
		"patient_id":   uuid.New().String(),
		"staff_id":     sl.StaffID,
		"physician_id": sl.PhysicianID,
		"specialty_id": sl.SpecialtyID,
		"room_id":      sl.RoomID,
		"center_id":    sl.CenterID,
	})

	start := time.Now()
	resp, err := s.post(ctx, "/api/v1/turnos", body)
	latency := time.Since(start)
	if err != nil {
		s.booking.Record(latency, false, false)
		return
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			s.pool.AddTurno(created.ID)
		}
		s.booking.Record(latency, true, false)
	case http.StatusConflict:
		s.booking.Record(latency, false, true)
	default:
		s.booking.Record(latency, false, false)
	}
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomTurno(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.post(ctx, "/api/v1/turnos/"+id.String()+"/confirmar", nil)
	latency := time.Since(start)
	if err != nil {
		s.confirm.Record(latency, false, false)
		return
	}
	defer drain(resp)

	// 409 here means another worker already moved the turno along.
	s.confirm.Record(latency, resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomTurno(rng)
	if !ok {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.config.APIBaseURL+"/api/v1/turnos/"+id.String(), nil)
	if err != nil {
		return
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.read.Record(latency, false, false)
		return
	}
	defer drain(resp)

	s.read.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "simulator")
	return s.client.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")
	printOp("booking", &s.booking)
	printOp("confirm", &s.confirm)
	printOp("read", &s.read)
}

func printOp(name string, om *OperationMetrics) {
	avg, p50, p95 := om.Stats()
	fmt.Printf("%-10s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s\n",
		name,
		atomic.LoadInt64(&om.Total),
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
		avg, p50, p95,
	)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
