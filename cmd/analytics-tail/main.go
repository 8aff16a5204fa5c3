package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gfbeer/venue-finder/internal/analytics"
)

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	topic := flag.String("topic", "finder/analytics", "Topic prefix the finder publishes under")
	raw := flag.Bool("raw", false, "Print payloads unformatted")

	flag.Parse()

	client, err := analytics.ConnectMQTT(*brokerAddr, "analytics-tail", 10*time.Second)
	if err != nil {
		log.Fatalf("failed to connect to broker: %v", err)
	}
	log.Printf("connected to MQTT broker %s", *brokerAddr)

	filter := strings.TrimSuffix(*topic, "/") + "/#"
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if *raw {
			fmt.Printf("%s %s\n", msg.Topic(), msg.Payload())
			return
		}
		if err := printEvent(os.Stdout, msg.Payload()); err != nil {
			log.Printf("skipping message on %s: %v", msg.Topic(), err)
		}
	}

	token := client.Subscribe(filter, 0, handler)
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.Fatalf("failed to subscribe to %s: %v", filter, token.Error())
	}
	log.Printf("subscribed to %s", filter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Print("received shutdown signal, disconnecting")
	client.Unsubscribe(filter).WaitTimeout(time.Second)
	client.Disconnect(250)
}

func printEvent(w io.Writer, payload []byte) error {
	var e analytics.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	line := fmt.Sprintf("%s  %-10s %s", e.At.Local().Format("15:04:05"), e.Category, e.Name)
	if e.Label != "" {
		line += " " + e.Label
	}
	if e.Count != nil {
		line += fmt.Sprintf(" (%d)", *e.Count)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
