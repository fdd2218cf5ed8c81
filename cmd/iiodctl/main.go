package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/goiiod/iiod"
	"github.com/goiiod/iiod/internal/logging"
)

func main() {
	var (
		uri       = flag.String("uri", "", `daemon URI, e.g. "ip:192.168.1.1" or "usb:1.4"`)
		device    = flag.String("device", "", "device name to open, e.g. iio:device0")
		readAttr  = flag.String("read-attr", "", "attribute name to read from -device")
		writeAttr = flag.String("write-attr", "", `"name=value" attribute to write to -device`)
		timeout   = flag.Duration("timeout", iiod.DefaultTimeout, "command timeout negotiated with the daemon")
		verbose   = flag.Bool("v", false, "verbose (debug) logging")
	)
	flag.Parse()

	if *uri == "" {
		log.Fatal("-uri is required")
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	ctx, err := iiod.Open(*uri, &iiod.Options{Logger: logger, Timeout: *timeout})
	if err != nil {
		logger.Error("failed to open context", "error", err)
		os.Exit(1)
	}
	defer ctx.Close()

	installStackDumpHandler(logger)

	version, err := ctx.Version()
	if err != nil {
		logger.Error("VERSION failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("iiod version: %s\n", version)

	if *device == "" {
		return
	}

	dev, err := ctx.OpenDevice(*device, false)
	if err != nil {
		logger.Error("failed to open device", "device", *device, "error", err)
		os.Exit(1)
	}
	defer dev.Close()

	if *readAttr != "" {
		v, err := dev.ReadAttr(*readAttr)
		if err != nil {
			logger.Error("read attr failed", "attr", *readAttr, "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s: %s\n", *readAttr, v)
	}

	if *writeAttr != "" {
		name, value, ok := splitNameValue(*writeAttr)
		if !ok {
			log.Fatalf(`-write-attr must be "name=value", got %q`, *writeAttr)
		}
		if _, err := dev.WriteAttr(name, value); err != nil {
			logger.Error("write attr failed", "attr", name, "error", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s = %s\n", name, value)
	}

	snap := ctx.Metrics().Snapshot()
	logger.Info("session metrics",
		"commands_issued", snap.CommandsIssued,
		"bytes_in", snap.BytesIn,
		"bytes_out", snap.BytesOut,
		"error_rate", snap.ErrorRate)
}

func splitNameValue(s string) (name, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// installStackDumpHandler wires SIGUSR1 to dump every goroutine's stack to
// stderr and a timestamped file, the same diagnostic hook the teacher's CLI
// carries for hangs in the multiplexer's reader/writer goroutines.
func installStackDumpHandler(logger *logging.Logger) {
	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== FULL GOROUTINE STACK DUMP ===\n%s\n=== END STACK DUMP ===\n\n", buf[:n])

			filename := fmt.Sprintf("iiodctl-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				fmt.Fprintf(f, "Goroutine stack dump at %s\nProcess ID: %d\n\n", time.Now().Format(time.RFC3339), os.Getpid())
				f.Write(buf[:n])
				fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack trace written to file", "file", filename)
			}
		}
	}()
}
