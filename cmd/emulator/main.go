package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// rrGenerator генерирует межударные интервалы с дыхательной модуляцией
// (синусная аритмия) и случайным шумом. Режим задает базовый интервал,
// глубину модуляции и частоту дыхания.
type rrGenerator struct {
	rand *rand.Rand

	baseMS      float64 // Базовый интервал, мс
	rsaDepthMS  float64 // Глубина дыхательной модуляции, мс
	breathRate  float64 // Частота дыхания, вдохов/мин
	noiseMS     float64 // Амплитуда шума, мс
	elapsedBeat float64 // Накопленное время в секундах
}

// Режимы эмуляции
var regimes = map[string]func(*rrGenerator){
	// Спокойное состояние: умеренная модуляция, обычное дыхание
	"rest": func(g *rrGenerator) {
		g.baseMS, g.rsaDepthMS, g.breathRate, g.noiseMS = 900, 50, 12, 15
	},
	// Когерентное дыхание: глубокая модуляция на ~6 вдохах/мин
	"coherent": func(g *rrGenerator) {
		g.baseMS, g.rsaDepthMS, g.breathRate, g.noiseMS = 950, 120, 6, 8
	},
	// Напряжение: короткие интервалы, слабая модуляция, рваное дыхание
	"stress": func(g *rrGenerator) {
		g.baseMS, g.rsaDepthMS, g.breathRate, g.noiseMS = 700, 15, 17, 35
	},
}

func newRRGenerator(regime string, seed int64) (*rrGenerator, error) {
	setup, ok := regimes[regime]
	if !ok {
		return nil, fmt.Errorf("unknown regime: %s", regime)
	}
	g := &rrGenerator{rand: rand.New(rand.NewSource(seed))}
	setup(g)
	return g, nil
}

// NextInterval возвращает следующий интервал в мс
func (g *rrGenerator) NextInterval() int {
	breathPhase := 2 * math.Pi * g.breathRate / 60.0 * g.elapsedBeat
	rsa := g.rsaDepthMS * math.Sin(breathPhase)
	noise := (g.rand.Float64()*2 - 1) * g.noiseMS

	value := g.baseMS + rsa + noise
	if value < 300 {
		value = 300
	}

	g.elapsedBeat += value / 1000.0
	return int(value)
}

// HeartRate возвращает текущий пульс, уд/мин (транзитный контекст)
func (g *rrGenerator) HeartRate() float64 {
	return 60000.0 / g.baseMS
}

type sampleMessage struct {
	IntervalMS int      `json:"interval_ms"`
	TsMS       int64    `json:"ts_ms"`
	HR         *float64 `json:"hr,omitempty"`
}

func main() {
	var (
		serverAddr = flag.String("server", "localhost:8080", "адрес сервиса трекера")
		regime     = flag.String("regime", "coherent", "режим эмуляции: rest | coherent | stress")
		speed      = flag.Float64("speed", 1.0, "ускорение времени (1.0 = реальное время)")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "seed генератора")
		sessionID  = flag.String("session", "", "ID существующей сессии (пустой = создать новую)")
	)
	flag.Parse()

	gen, err := newRRGenerator(*regime, *seed)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	id := *sessionID
	if id == "" {
		id, err = createSession(*serverAddr)
		if err != nil {
			log.Fatalf("[FATAL] Failed to create session: %v", err)
		}
		log.Printf("[INFO] Created session: %s", id)
	}

	wsURL := fmt.Sprintf("ws://%s/ws/ingest/%s", *serverAddr, id)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect to %s: %v", wsURL, err)
	}
	defer conn.Close()

	log.Printf("[INFO] Streaming %s regime to %s (speed x%.1f)", *regime, wsURL, *speed)

	// Вычитываем ack-сообщения, чтобы соединение не копило буфер
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	sent := 0
	ts := time.Now()
	for {
		select {
		case <-stopChan:
			log.Printf("[INFO] Stopping emulator, sent %d samples", sent)
			return
		default:
		}

		interval := gen.NextInterval()
		ts = ts.Add(time.Duration(interval) * time.Millisecond)
		hr := gen.HeartRate()

		msg := sampleMessage{IntervalMS: interval, TsMS: ts.UnixMilli(), HR: &hr}
		if err := conn.WriteJSON(msg); err != nil {
			log.Fatalf("[FATAL] Failed to send sample: %v", err)
		}
		sent++

		if sent%100 == 0 {
			log.Printf("[INFO] Sent %d samples, last interval %dms", sent, interval)
		}

		time.Sleep(time.Duration(float64(interval) / *speed) * time.Millisecond)
	}
}

// createSession создает сессию через HTTP API трекера
func createSession(serverAddr string) (string, error) {
	body, _ := json.Marshal(map[string]string{"created_from": "emulator"})
	resp, err := http.Post(
		fmt.Sprintf("http://%s/api/sessions", serverAddr),
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var parsed struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Session.ID, nil
}
