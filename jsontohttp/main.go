package main

import (
	"bufio"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"github.com/urfave/cli/v2"
)

const (
	defaultTarget  = "http://127.0.0.1:8080/meter"
	defaultWorkers = 5
	requestTimeout = 10 * time.Second
)

type poster struct {
	client     *http.Client
	targetUrl  string
	maxElapsed time.Duration
	sent       atomic.Int64
	failed     atomic.Int64
}

// jsontohttp posts meter readings, one JSON object per input line, to the
// home-energy meter endpoint.
func main() {
	var targetUrl string
	var workers int
	var maxElapsed time.Duration

	app := &cli.App{
		Name:  "jsontohttp",
		Usage: "jsontohttp --target=\"http://127.0.0.1:8080/meter\" < readings.jsonl",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "target",
				Usage:       "A HTTP URL to post each line of input to",
				Value:       defaultTarget,
				Destination: &targetUrl,
			},
			&cli.IntFlag{
				Name:        "workers",
				Usage:       "number of concurrent requests",
				Value:       defaultWorkers,
				Destination: &workers,
			},
			&cli.DurationFlag{
				Name:        "retry-for",
				Usage:       "how long to retry a failed post",
				Value:       30 * time.Second,
				Destination: &maxElapsed,
			},
		},
		Action: func(c *cli.Context) error {
			if workers < 1 {
				return fmt.Errorf("workers must be at least 1")
			}
			p := &poster{
				client:     &http.Client{Timeout: requestTimeout},
				targetUrl:  targetUrl,
				maxElapsed: maxElapsed,
			}
			return p.run(os.Stdin, workers)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func (p *poster) run(input *os.File, workers int) error {
	jsonObjects := make(chan string)
	wg := new(sync.WaitGroup)

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go p.worker(jsonObjects, wg)
	}

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		jsonBody := strings.TrimSpace(scanner.Text())
		if jsonBody == "" {
			continue
		}
		if err := validReading(jsonBody); err != nil {
			fmt.Fprintf(os.Stderr, "skipping line: %v\n", err)
			continue
		}
		jsonObjects <- jsonBody
	}

	close(jsonObjects)
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Printf("posted %d readings, %d failed\n", p.sent.Load(), p.failed.Load())
	if p.failed.Load() > 0 {
		return fmt.Errorf("%d readings could not be posted", p.failed.Load())
	}
	return nil
}

func (p *poster) worker(jsonObjects <-chan string, wg *sync.WaitGroup) {
	defer wg.Done()

	for jsonObject := range jsonObjects {
		fmt.Printf("POST %s to %s\n", firstN(jsonObject, 25), p.targetUrl)
		if err := p.post(jsonObject); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			p.failed.Add(1)
			continue
		}
		p.sent.Add(1)
	}
}

// post retries connection errors and 5xx responses. Any other non-200
// response is final.
func (p *poster) post(jsonObject string) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.maxElapsed

	return backoff.Retry(func() error {
		resp, err := p.client.Post(p.targetUrl, "application/json", strings.NewReader(jsonObject))
		if err != nil {
			return err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("non-200 response (%d)", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("non-200 response (%d)", resp.StatusCode))
		}
	}, b)
}

func validReading(jsonBody string) error {
	if !gjson.Valid(jsonBody) {
		return fmt.Errorf("input is invalid JSON")
	}
	if !gjson.Get(jsonBody, "device.address").Exists() {
		return fmt.Errorf("device.address missing")
	}
	if !gjson.Get(jsonBody, "sensors").IsObject() {
		return fmt.Errorf("sensors missing")
	}
	return nil
}

func firstN(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j] + "..."
		}
		i++
	}
	return s
}
