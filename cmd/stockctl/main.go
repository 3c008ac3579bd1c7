package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	stan "github.com/nats-io/stan.go"
)

// stockctl публикует корректировку остатка в поток склада.
// Пример: stockctl -product sku-123 -delta 40 -type STOCK_IN -reason "поставка"

func main() {
	product := flag.String("product", "", "product id")
	delta := flag.Int64("delta", 0, "signed stock delta")
	typ := flag.String("type", "ADJUSTMENT", "ADJUSTMENT|STOCK_IN|STOCK_OUT")
	reason := flag.String("reason", "", "human readable reason")
	reference := flag.String("reference", "", "document reference")
	flag.Parse()

	if *product == "" || *delta == 0 {
		flag.Usage()
		os.Exit(2)
	}

	clusterID := getenv("STAN_CLUSTER_ID", "shop-cluster")
	clientID := getenv("STAN_PUB_ID", "stockctl")
	natsURL := getenv("NATS_URL", "nats://localhost:4222")
	subject := getenv("STAN_STOCK_SUBJECT", "shop.stock")

	sc, err := stan.Connect(clusterID, clientID, stan.NatsURL(natsURL))
	if err != nil {
		log.Fatalf("stan connect: %v", err)
	}
	defer sc.Close()

	b, err := json.Marshal(map[string]any{
		"product_id": *product,
		"type":       *typ,
		"delta":      *delta,
		"reason":     *reason,
		"reference":  *reference,
	})
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	if err := sc.Publish(subject, b); err != nil {
		log.Fatalf("publish: %v", err)
	}
	log.Printf("published %d bytes to %s", len(b), subject)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
