package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type Application struct {
	Name       string
	Email      string
	Phone      string
	Position   string
	Experience string
}

const StreamName = "APPLICATIONS"

// Smallest byte sequence the relay's type sniffing accepts as a PDF.
var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func main() {
	count := flag.Int("count", 100, "Total number of applications to submit")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent workers")
	email := flag.String("email", "applicant@example.com", "Applicant email used for the test")
	relayURL := flag.String("url", "http://localhost:8080/api/submit-application", "URL of the relay endpoint")
	natsURL := flag.String("nats", "nats://localhost:4222", "URL of the NATS server")
	withFile := flag.Bool("file", true, "Attach a small PDF resume to every application")
	purgeQueue := flag.Bool("purge", false, "If set, purge the applications stream before running the test")
	flag.Parse()

	if *purgeQueue {
		purgeStream(*natsURL)
	}

	runLoadTest(*count, *concurrency, *email, *relayURL, *withFile)
}

func purgeStream(natsURL string) {
	log.Printf("Connecting to NATS at %s to purge stream...", natsURL)
	nc, err := nats.Connect(natsURL)
	if err != nil {
		log.Fatalf("Error connecting to NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("Error creating JetStream context: %v", err)
	}

	log.Printf("Purging stream '%s'...", StreamName)
	if err := js.PurgeStream(StreamName); err != nil {
		log.Fatalf("Failed to purge stream: %v", err)
	}
	log.Printf("Stream '%s' successfully purged.", StreamName)
}

func runLoadTest(count, concurrency int, email, relayURL string, withFile bool) {
	log.Printf("Starting load test: %d applications with %d concurrent workers to %s", count, concurrency, relayURL)

	jobs := make(chan Application, count)
	results := make(chan bool, count)
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go worker(i+1, relayURL, withFile, jobs, results, &wg)
	}

	startTime := time.Now()
	for i := 0; i < count; i++ {
		jobs <- Application{
			Name:       fmt.Sprintf("Load Test Applicant %d/%d", i+1, count),
			Email:      email,
			Phone:      "555-0100",
			Position:   "Seasonal Helper",
			Experience: fmt.Sprintf("Generated at %v", time.Now().Format(time.RFC3339)),
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	duration := time.Since(startTime)
	successCount := 0
	for r := range results {
		if r {
			successCount++
		}
	}

	log.Println("----------- Load Test Complete -----------")
	log.Printf("Total Requests: %d", count)
	log.Printf("Successful:     %d", successCount)
	log.Printf("Failed:         %d", count-successCount)
	log.Printf("Duration:       %.2f minutes", duration.Minutes())
	log.Printf("RPS (Requests Per Second): %.2f", float64(count)/duration.Seconds())
	log.Println("-------------------------------------------")
}

func worker(id int, relayURL string, withFile bool, jobs <-chan Application, results chan<- bool, wg *sync.WaitGroup) {
	defer wg.Done()
	client := &http.Client{Timeout: 30 * time.Second}
	for job := range jobs {
		if err := submit(client, relayURL, job, withFile); err != nil {
			log.Printf("ERROR (Worker %d): %v", id, err)
			results <- false
			continue
		}
		log.Printf("OK (Worker %d): %s accepted.", id, job.Name)
		results <- true
	}
}

func submit(client *http.Client, relayURL string, app Application, withFile bool) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"name", app.Name},
		{"email", app.Email},
		{"phone", app.Phone},
		{"position", app.Position},
		{"experience", app.Experience},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field: %w", err)
		}
	}
	if withFile {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="attachment"; filename="resume.pdf"`)
		h.Set("Content-Type", "application/pdf")
		part, err := mw.CreatePart(h)
		if err != nil {
			return fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(samplePDF); err != nil {
			return fmt.Errorf("failed to write file part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, relayURL, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned non-200 status: %s", resp.Status)
	}
	return nil
}
