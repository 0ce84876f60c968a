// Command stubserver is a local stand-in for the remote transcription
// service. It serves both outbound contracts the pipeline uses: the
// streaming recognition endpoint and the multipart audio routing
// endpoint. Point the service config at it for end-to-end runs without
// the real backend.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"
)

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

var displayText = flag.String("text", "hello world", "Transcript returned for every recognition request")

func recognizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading audio body", http.StatusBadRequest)
		return
	}

	log.Printf("recognition request: %d audio bytes, auth=%q, content-type=%q",
		len(body), authHeader(r), r.Header.Get("Content-Type"))

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recognitionResponse{
		RecognitionStatus: "Success",
		DisplayText:       *displayText,
	})

	log.Printf("recognition response sent: %q", *displayText)
}

func routingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
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

	log.Printf("routing upload: file=%s (%d bytes) text=%q timestamp=%s macAddress=%s auth=%q",
		header.Filename, len(audioData),
		r.FormValue("text"), r.FormValue("timestamp"), r.FormValue("macAddress"),
		authHeader(r))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"received":  true,
		"timestamp": time.Now().UTC(),
	})
}

func authHeader(r *http.Request) string {
	if key := r.Header.Get("x-functions-key"); key != "" {
		return "x-functions-key"
	}
	if r.Header.Get("Authorization") != "" {
		return "bearer"
	}
	return "none"
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	flag.Parse()

	http.HandleFunc("/api/v1/recognize", recognizeHandler)
	http.HandleFunc("/api/v1/audio-routing", routingHandler)

	log.Printf("stub transcription server listening on %s", *addr)
	log.Printf("recognition endpoint: http://localhost%s/api/v1/recognize", *addr)
	log.Printf("routing endpoint:     http://localhost%s/api/v1/audio-routing", *addr)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
