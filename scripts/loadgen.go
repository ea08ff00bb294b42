// Command loadgen drives smoke traffic against a running engine: progressive
// sessions with random reveal/cashout sequences and pooled rounds with a
// handful of participants. Useful for manual testing and for watching the
// /v1/events stream.
//
//	go run scripts/loadgen.go -base-url http://localhost:8080 -mode sessions -n 20
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

type options struct {
	baseURL string
	apiKey  string
	mode    string
	n       int
	owner   string
	family  string
	stake   int64
	reveals int
	delay   time.Duration
}

func main() {
	var opt options
	flag.StringVar(&opt.baseURL, "base-url", "http://localhost:8080", "engine base URL")
	flag.StringVar(&opt.apiKey, "api-key", "", "bearer API key; empty when auth is disabled")
	flag.StringVar(&opt.mode, "mode", "sessions", "traffic mode: sessions|rounds")
	flag.IntVar(&opt.n, "n", 10, "number of sessions or rounds to run")
	flag.StringVar(&opt.owner, "owner", "loadgen", "owner/participant account prefix")
	flag.StringVar(&opt.family, "family", "", "game family; defaults to ladder (sessions) or wheel (rounds)")
	flag.Int64Var(&opt.stake, "stake", 100, "stake per session or bet")
	flag.IntVar(&opt.reveals, "reveals", 3, "max reveals before cashout per session")
	flag.DurationVar(&opt.delay, "delay", 50*time.Millisecond, "pause between operations")
	flag.Parse()

	client := &client{base: opt.baseURL, key: opt.apiKey, http: &http.Client{Timeout: 10 * time.Second}}

	// Fund the worker accounts up front.
	for p := 0; p < 5; p++ {
		account := fmt.Sprintf("%s-%d", opt.owner, p)
		if err := client.post("/v1/accounts/"+account+"/deposit", map[string]any{
			"amount": opt.stake * int64(opt.n) * 2,
		}, nil); err != nil {
			log.Fatalf("deposit: %v", err)
		}
	}

	switch opt.mode {
	case "sessions":
		if opt.family == "" {
			opt.family = "ladder"
		}
		runSessions(client, opt)
	case "rounds":
		if opt.family == "" {
			opt.family = "wheel"
		}
		runRounds(client, opt)
	default:
		log.Fatalf("unknown mode %q", opt.mode)
	}
}

func runSessions(c *client, opt options) {
	won, lost := 0, 0
	for i := 0; i < opt.n; i++ {
		owner := fmt.Sprintf("%s-%d", opt.owner, i%5)
		var session map[string]any
		if err := c.post("/v1/sessions", map[string]any{
			"owner": owner, "stake": opt.stake, "family": opt.family,
		}, &session); err != nil {
			log.Printf("open: %v", err)
			continue
		}
		id := session["sessionId"].(string)

		alive := true
		for r := 0; r < opt.reveals && alive; r++ {
			var result map[string]any
			err := c.post("/v1/sessions/"+id+"/reveal", map[string]any{
				"owner": owner, "selection": rand.Intn(25),
			}, &result)
			if err != nil {
				log.Printf("reveal: %v", err)
				alive = false
				break
			}
			if result["outcome"] != "SAFE" {
				if result["outcome"] == "LOST" {
					lost++
				} else {
					won++
				}
				alive = false
			}
			time.Sleep(opt.delay)
		}
		if alive {
			var out map[string]any
			if err := c.post("/v1/sessions/"+id+"/cashout", map[string]any{"owner": owner}, &out); err != nil {
				log.Printf("cashout: %v", err)
			} else {
				won++
			}
		}
		time.Sleep(opt.delay)
	}
	log.Printf("sessions done: %d won/cashed out, %d lost", won, lost)
}

func runRounds(c *client, opt options) {
	for i := 0; i < opt.n; i++ {
		var round map[string]any
		if err := c.post("/v1/rounds", map[string]any{"family": opt.family}, &round); err != nil {
			log.Printf("open round: %v", err)
			continue
		}
		id := round["roundId"].(string)

		categories := []string{"red", "black", "green"}
		for p := 0; p < 3; p++ {
			participant := fmt.Sprintf("%s-%d", opt.owner, p)
			if err := c.post("/v1/rounds/"+id+"/bets", map[string]any{
				"participant": participant,
				"amount":      opt.stake,
				"category":    categories[rand.Intn(len(categories))],
			}, nil); err != nil {
				log.Printf("bet: %v", err)
			}
			time.Sleep(opt.delay)
		}

		var closed map[string]any
		if err := c.post("/v1/rounds/"+id+"/close", map[string]any{}, &closed); err != nil {
			log.Printf("close: %v", err)
			continue
		}
		log.Printf("round %s settled: %v", id, closed["outcome"])
		time.Sleep(opt.delay)
	}
}

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) post(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var envelope map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return fmt.Errorf("%s %s: %d %v", http.MethodPost, path, resp.StatusCode, envelope["error"])
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
