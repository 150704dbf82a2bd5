package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/whisper/reportdesk/internal/messaging"
	"github.com/whisper/reportdesk/internal/moddest"
)

// modwatch tails the moderation subjects and renders incoming reports for
// the moderation team. Records arrive on the configured subject; evidence
// bundles follow on the sibling .evidence subject.
func main() {
	log.Println("Starting moderation watcher...")

	subject := messaging.SubjectReports
	if v := os.Getenv("REPORTS_SUBJECT"); v != "" {
		subject = v
	}

	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "reportdesk-modwatch"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	err = natsClient.SubscribeReports(subject, func(data []byte) {
		var rec moddest.RecordMessage
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Printf("[modwatch] failed to unmarshal record: %v", err)
			return
		}

		log.Printf("[modwatch] REPORT id=%s reporter=%s evidence=%d", rec.ID, rec.ReporterID, rec.EvidenceCount)
		log.Printf("[modwatch]   content: %s", rec.Text)
		if rec.TargetUserID != "" {
			log.Printf("[modwatch]   reported user: %s", rec.TargetUserID)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to reports: %v", err)
	}

	err = natsClient.SubscribeEvidence(subject, func(data []byte) {
		var bundle moddest.EvidenceMessage
		if err := json.Unmarshal(data, &bundle); err != nil {
			log.Printf("[modwatch] failed to unmarshal evidence bundle: %v", err)
			return
		}

		log.Printf("[modwatch] EVIDENCE count=%d", bundle.Count)
		for _, item := range bundle.Items {
			log.Printf("[modwatch]   %s (%d bytes) %s", item.Filename, item.Size, item.Ref)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to evidence: %v", err)
	}

	log.Printf("Moderation watcher running")
	log.Printf("  subject:  %s", subject)
	log.Printf("  nats_url: %s", natsConfig.URL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
}
