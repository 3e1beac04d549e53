package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"scrapbox.gg/internal/persistence/mirror"
)

// openSaveMirror returns nil unless SB_MIRROR_ENDPOINT is set.
func openSaveMirror(logger *log.Logger) (*mirror.Mirror, error) {
	endpoint := strings.TrimSpace(os.Getenv("SB_MIRROR_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}
	client, err := mirror.NewS3Client(mirror.S3Config{
		Endpoint:        endpoint,
		Bucket:          os.Getenv("SB_MIRROR_BUCKET"),
		Region:          os.Getenv("SB_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("SB_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("SB_MIRROR_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	logger.Printf("save mirror enabled endpoint=%s", endpoint)
	return mirror.New(client, mirror.Options{
		Prefix:        os.Getenv("SB_MIRROR_PREFIX"),
		Workers:       envInt("SB_MIRROR_WORKERS", 1),
		QueueCapacity: envInt("SB_MIRROR_QUEUE", 64),
		Logger:        logger,
	}), nil
}

func writeMirrorMetrics(rw http.ResponseWriter, worldID string, s mirror.Stats) {
	fmt.Fprintf(rw, "# HELP scrapbox_mirror_queue_depth Save uploads waiting for a worker.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "scrapbox_mirror_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP scrapbox_mirror_uploads_total Save uploads by result.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_mirror_uploads_total counter\n")
	fmt.Fprintf(rw, "scrapbox_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "ok", s.UploadSuccessTotal)
	fmt.Fprintf(rw, "scrapbox_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "fail", s.UploadFailTotal)
	fmt.Fprintf(rw, "scrapbox_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "dropped", s.DroppedTotal)

	fmt.Fprintf(rw, "# HELP scrapbox_mirror_last_success_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "scrapbox_mirror_last_success_unix{world=%q} %d\n", worldID, s.LastSuccessUnix)
}
