package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chrissnell/vantaged/internal/log"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis/emulator"
)

func main() {
	var (
		port     = flag.Int("port", 22222, "Port to listen on")
		debug    = flag.Bool("debug", false, "Turn on debugging output")
		interval = flag.Int("interval", 5, "Archive interval in minutes")
		backfill = flag.Int("backfill", 288, "Archive records to generate at startup")
		lat      = flag.Int("lat", 400, "Latitude in tenths of a degree")
		lon      = flag.Int("lon", -1050, "Longitude in tenths of a degree")
		elev     = flag.Int("elev", 5280, "Elevation in feet")
		skew     = flag.Duration("skew", 0, "Console clock offset from system time")
		echoEOL  = flag.Bool("echo-eol", false, "Send LF CR ahead of every ACK, like an echoing terminal server")

		// Flaky hardware simulation flags
		flaky        = flag.Bool("flaky", false, "Enable flaky hardware simulation")
		dropRate     = flag.Float64("drop-rate", 0.05, "Probability of dropping bytes from replies (0.0-1.0)")
		corruptRate  = flag.Float64("corrupt-rate", 0.05, "Probability of corrupting bytes in replies (0.0-1.0)")
		noRespRate   = flag.Float64("no-response-rate", 0.01, "Probability of not responding to commands (0.0-1.0)")
		slowRate     = flag.Float64("slow-rate", 0.02, "Probability of very slow responses (0.0-1.0)")
		slowResponse = flag.Duration("slow", 3*time.Second, "Delay for slow responses")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	clock := clockwork.NewRealClock()
	weather := emulator.NewWeather(clock)

	console := emulator.NewConsole(clock)
	console.LoopSource = weather.Loop
	console.SetInterval(*interval)
	console.SetPosition(*lat, *lon, *elev)
	console.SetClockSkew(*skew)
	if *echoEOL {
		console.SetAckPrefix([]byte{'\n', '\r'})
	}
	console.Backfill(weather, *backfill)

	srv := emulator.NewServer(console, logger)
	srv.Flaky = emulator.FlakyConfig{
		Enabled:         *flaky,
		DropByteRate:    *dropRate,
		CorruptByteRate: *corruptRate,
		NoResponseRate:  *noRespRate,
		SlowResponse:    *slowResponse,
		SlowRate:        *slowRate,
	}
	if *flaky {
		logger.Infof("flaky hardware mode: drop %.1f%%, corrupt %.1f%%, no response %.1f%%, slow %.1f%%",
			*dropRate*100, *corruptRate*100, *noRespRate*100, *slowRate*100)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}

	go console.Run(ctx, weather)

	logger.Infof("Davis emulator listening on port %d with %d archive records", *port, console.Records())
	if err := srv.Serve(ctx, listener); err != nil && ctx.Err() == nil {
		logger.Fatalf("emulator stopped: %v", err)
	}
	logger.Info("emulator stopped")
}
