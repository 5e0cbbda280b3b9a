// Command stt-stub is a development stand-in for the transcription API. It
// accepts the multipart chunk upload and answers with canned text, so the
// full pipeline can run locally without a speech backend.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type transcriptionResponse struct {
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	Language    string    `json:"language"`
	ProcessedAt time.Time `json:"processed_at"`
}

var (
	delay = flag.Duration("delay", 200*time.Millisecond, "simulated processing time per chunk")
	text  = flag.String("text", "stub transcription of the audio chunk", "canned transcription text")
)

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("session_id")
	chunkIndex := r.FormValue("chunk_index")
	timestamp := r.FormValue("timestamp")
	duration := r.FormValue("duration")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("chunk received: session=%s index=%s timestamp=%ss duration=%ss file=%s size=%d",
		sessionID, chunkIndex, timestamp, duration, header.Filename, len(audioData))

	time.Sleep(*delay)

	response := transcriptionResponse{
		Text:        fmt.Sprintf("%s %s", *text, chunkIndex),
		Confidence:  0.95,
		Language:    "en",
		ProcessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)

	log.Printf("stub transcription server listening on %s", *addr)
	log.Printf("point transcription.endpoint at http://localhost%s/transcribe", *addr)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("server failed to start:", err)
	}
}
