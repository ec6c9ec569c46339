// Command journal dumps a simulation journal file written by the -journal
// run flag. Each record prints as one line; -decode adds the payload JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"

	"main/internal/recorder"
	"main/internal/schema"
)

func main() {
	path := flag.String("file", "sim.journal", "Journal file to read")
	decode := flag.Bool("decode", false, "Print decoded payloads")
	topic := flag.String("topic", "", "Only print records on this topic")
	flag.Parse()

	if *topic != "" && !schema.Topic(*topic).IsAvailable() {
		log.Fatalf("unknown topic: %s", *topic)
	}

	r, err := recorder.OpenReader(*path)
	if err != nil {
		log.Fatalf("open journal failed: %v", err)
	}
	defer r.Close()

	var index int
	counts := map[schema.Topic]int{}
	for {
		m, err := r.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read record %d failed: %v", index+1, err)
		}
		index++
		counts[m.Topic]++
		if *topic != "" && m.Topic != schema.Topic(*topic) {
			continue
		}
		fmt.Printf("%06d topic=%s seq=%d publisher=%s ts=%d\n",
			index, m.Topic, m.Seq, m.Publisher, m.TsPublish)
		if *decode {
			data, err := json.MarshalIndent(m.Payload, "  ", "  ")
			if err != nil {
				log.Fatalf("marshal payload failed: %v", err)
			}
			fmt.Printf("  %s\n", data)
		}
	}

	fmt.Printf("%d records\n", index)
	for topic, n := range counts {
		fmt.Printf("  %-20s %d\n", topic, n)
	}
}
