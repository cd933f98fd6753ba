// ampgen broadcasts simulated current measurements so the filter engine
// can be exercised without real sensors. Each channel draws from its own
// Gaussian profile.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"

	"ampfilter/internal/device"
	"ampfilter/internal/models"
)

type profile struct {
	mean   float64
	stddev float64
}

var profiles = map[string]profile{
	"Ia": {3, 1}, "Ib": {3, 1},
	"Ic": {8, 1.5}, "Id": {8, 1.5},
	"Ie": {13, 2}, "If": {13, 2},
	"Ig": {18, 2.5}, "Ih": {18, 2.5},
}

var channels = []string{"Ia", "Ib", "Ic", "Id", "Ie", "If", "Ig", "Ih"}

func main() {
	fs := flag.NewFlagSet("ampgen", flag.ExitOnError)
	target := fs.String("target", "255.255.255.255:5005", "destination address for measurement broadcasts")
	count := fs.Int("count", 100000, "number of packets to send")
	interval := fs.Duration("interval", 0, "pause between packets")

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("AMPGEN")); err != nil {
		os.Exit(2)
	}

	addr, err := net.ResolveUDPAddr("udp4", *target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve %s: %v\n", *target, err)
		os.Exit(1)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *target, err)
		os.Exit(1)
	}
	defer conn.Close()
	enableBroadcast(conn)

	start := time.Now()
	sent := 0
	for i := 0; i < *count; i++ {
		ch := channels[rand.Intn(len(channels))]
		id, _ := device.ForChannel(ch)

		m := models.Measurement{
			DeviceID: int(id),
			Channel:  ch,
			Value:    measure(ch),
		}
		payload, err := json.Marshal(m)
		if err != nil {
			continue
		}
		if _, err := conn.Write(payload); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			continue
		}
		sent++

		if *interval > 0 {
			time.Sleep(*interval)
		}
	}

	elapsed := time.Since(start)
	if sent > 0 {
		fmt.Printf("Average send time per packet: %.6f seconds\n", elapsed.Seconds()/float64(sent))
	}
}

// measure draws a simulated current reading for a channel.
func measure(ch string) int {
	p := profiles[ch]
	return int(rand.NormFloat64()*p.stddev + p.mean)
}

func enableBroadcast(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
}
