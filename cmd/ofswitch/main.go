// Command ofswitch runs an OpenFlow 1.3 software switch: it bridges
// the named data interfaces into a two-table flow pipeline and dials
// out to the configured controller for programming.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/netrack/ofswitch/controlpath"
	"github.com/netrack/ofswitch/datapath"
	"github.com/netrack/ofswitch/iface"
	"github.com/netrack/ofswitch/msgbus"
	"github.com/netrack/ofswitch/of"
)

const (
	// numTables is the fixed pipeline depth.
	numTables = 2

	// maxEntriesPerTable bounds each table, not counting its
	// table-miss entry.
	maxEntriesPerTable = 20

	// maxInterfaces bounds how many data interfaces the switch
	// exposes.
	maxInterfaces = 10

	// numPktBuffers is the buffer count advertised in the features
	// reply. Packets are never actually buffered; every packet-in
	// carries its full frame.
	numPktBuffers = 256

	// defaultControllerPort is the pre-IANA OpenFlow port (IANA later
	// assigned 6653) that many controllers still listen on.
	defaultControllerPort = 6633

	// busCapacity bounds each direction of the control/data message
	// bus.
	busCapacity = 64
)

var (
	interfaces     = flag.String("interfaces", "", "comma-separated data interface names, in port order (port 1 first)")
	controllerIP   = flag.String("controller-ip", "", "controller IPv4 address, dotted quad")
	controllerPort = flag.Int("controller-port", defaultControllerPort, "controller TCP port")
)

func main() {
	flag.Parse()

	names, addr, err := validateArgs(*interfaces, *controllerIP, *controllerPort)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(1)
	}

	ports, err := iface.OpenSet(names)
	if err != nil {
		log.WithError(err).Fatal("failed to open data interfaces")
	}
	defer ports.Close()

	conn, err := of.Dial("tcp", addr)
	if err != nil {
		log.WithError(err).WithField("addr", addr).Fatal("failed to connect to controller")
	}
	defer conn.Close()

	bus := msgbus.New(busCapacity)
	dp := datapath.New(numTables, maxEntriesPerTable, ports, bus)
	cp := controlpath.New(conn, bus, controlpath.Config{
		DatapathID: controlpath.DatapathID(ports.Port(1).HWAddr()),
		NumTables:  numTables,
		NumBuffers: numPktBuffers,
		Ports:      ports,
		Tables:     dp,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	var runner of.Runner = of.OnDemandRoutineRunner{}

	for _, p := range ports.All() {
		p := p
		wg.Add(1)
		runner.Run(func() {
			defer wg.Done()
			serveRx(ctx, p, dp)
		})
	}

	wg.Add(1)
	runner.Run(func() {
		defer wg.Done()
		dp.Run(ctx)
	})

	log.WithFields(log.Fields{
		"controller": addr,
		"ports":      len(names),
	}).Info("switch started")

	err = cp.Run(ctx)

	// Shutdown order: stop the per-port receivers and the datapath,
	// then tear down the controller stream.
	stop()
	ports.Close()
	conn.Close()
	wg.Wait()

	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("controller connection lost")
		os.Exit(1)
	}

	log.Info("switch stopped")
}

// serveRx feeds frames received on p into the datapath until ctx is
// cancelled. Receive failures are logged and retried; the loop only
// exits on shutdown.
func serveRx(ctx context.Context, p *iface.Port, dp *datapath.DataPath) {
	for {
		frame, err := p.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).WithField("port", p.No).Warn("receive failed, retrying")
			continue
		}

		select {
		case dp.Frames <- datapath.Frame{InPort: p.No, Data: frame}:
		case <-ctx.Done():
			return
		}
	}
}

// validateArgs checks the command line per the startup contract:
// at least one and at most maxInterfaces interface names, a
// well-formed IPv4 controller address, and a usable TCP port.
func validateArgs(ifaceList, ip string, port int) (names []string, addr string, err error) {
	for _, name := range strings.Split(ifaceList, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, "", fmt.Errorf("at least one data interface is required")
	}
	if len(names) > maxInterfaces {
		return nil, "", fmt.Errorf("at most %d data interfaces are supported, got %d", maxInterfaces, len(names))
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return nil, "", fmt.Errorf("controller-ip must be a dotted-quad IPv4 address, got %q", ip)
	}

	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("controller-port must be in 1..65535, got %d", port)
	}

	return names, net.JoinHostPort(parsed.String(), strconv.Itoa(port)), nil
}
