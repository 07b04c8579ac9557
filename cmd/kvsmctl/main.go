// Command kvsmctl is a small operator tool for poking at a kvsm store
// directly: inspecting its head, reading and writing keys, compacting it,
// and shuttling frames between stores via serialize/ingest.
package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
	"github.com/natefinch/atomic"

	"github.com/finwo/kvsm/kvsm"
)

func usage(out io.Writer, argv0 string) {
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Usage: %s [global opts] command [command opts]\n", argv0)
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Global options\n")
	fmt.Fprintf(out, "  -h           Show this usage\n")
	fmt.Fprintf(out, "  -f filename  Set database file to operate on (default kvsm.db)\n")
	fmt.Fprintf(out, "  -v level     Set verbosity level (fatal,error,warn,info,debug,trace)\n")
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Commands\n")
	fmt.Fprintf(out, "  current-increment        Print the head generation number\n")
	fmt.Fprintf(out, "  get <key>                Print the value stored for key\n")
	fmt.Fprintf(out, "  set <key> <value>        Store value under key\n")
	fmt.Fprintf(out, "  del <key>                Delete key\n")
	fmt.Fprintf(out, "  compact                  Reclaim fully-shadowed frames\n")
	fmt.Fprintf(out, "  serialize [generation]   Print the hex payload for a frame (default: head)\n")
	fmt.Fprintf(out, "    -o file                Write the payload to file instead of stdout\n")
	fmt.Fprintf(out, "  ingest <hex>             Ingest a hex payload produced by serialize\n")
	fmt.Fprintf(out, "\n")
}

func levelFromString(s string) (log.Level, error) {
	switch s {
	case "trace":
		// charmbracelet/log has no trace level; one step below debug is
		// the closest equivalent to the original tool's rxi/log levels.
		return log.DebugLevel - 1, nil
	case "debug":
		return log.DebugLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "warn":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	case "fatal":
		return log.FatalLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", s)
	}
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr)

	flags := flag.NewFlagSet("kvsmctl", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	filename := flags.StringP("file", "f", "kvsm.db", "database file to operate on")
	verbosity := flags.StringP("verbose", "v", "info", "log verbosity")
	help := flags.BoolP("help", "h", false, "show usage")

	if err := flags.Parse(argv[1:]); err != nil {
		fmt.Fprintln(stderr, err)
		usage(stderr, argv[0])
		return 1
	}
	if *help {
		usage(stdout, argv[0])
		return 0
	}

	level, err := levelFromString(*verbosity)
	if err != nil {
		logger.Fatal(err) // exits the process
	}
	logger.SetLevel(level)

	args := flags.Args()
	if len(args) == 0 {
		logger.Error("no command given")
		usage(stderr, argv[0])
		return 1
	}
	command, args := args[0], args[1:]

	store, err := kvsm.Open(*filename, kvsm.Options{Logger: logger})
	if err != nil {
		logger.Error("opening store", "file", *filename, "err", err)
		return 1
	}
	defer store.Close()

	if err := dispatch(store, command, args, stdout, logger); err != nil {
		logger.Error(command, "err", err)
		return 1
	}
	return 0
}

func dispatch(store *kvsm.Store, command string, args []string, stdout io.Writer, logger *log.Logger) error {
	switch command {
	case "current-increment":
		fmt.Fprintln(stdout, store.HeadGeneration())
		return nil

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("get requires exactly one key argument")
		}
		v, err := store.Get([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(v))
		return nil

	case "set":
		if len(args) != 2 {
			return fmt.Errorf("set requires a key and a value argument")
		}
		return store.Set([]byte(args[0]), []byte(args[1]))

	case "del":
		if len(args) != 1 {
			return fmt.Errorf("del requires exactly one key argument")
		}
		return store.Del([]byte(args[0]))

	case "compact":
		before := store.HeadGeneration()
		if err := store.Compact(); err != nil {
			return err
		}
		logger.Info("compacted", "head-generation", before)
		return nil

	case "serialize":
		return runSerialize(store, args, stdout)

	case "ingest":
		if len(args) != 1 {
			return fmt.Errorf("ingest requires a hex payload argument")
		}
		payload, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("decoding hex payload: %w", err)
		}
		return store.Ingest(payload)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runSerialize(store *kvsm.Store, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("serialize", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	outFile := flags.StringP("output", "o", "", "write payload to this file instead of stdout")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var cur *kvsm.Cursor
	var err error
	switch rest := flags.Args(); len(rest) {
	case 0:
		cur, err = store.Head()
	case 1:
		var generation uint64
		if _, scanErr := fmt.Sscanf(rest[0], "%d", &generation); scanErr != nil {
			return fmt.Errorf("invalid generation %q", rest[0])
		}
		cur, err = store.Fetch(generation)
	default:
		return fmt.Errorf("serialize takes at most one generation argument")
	}
	if err != nil {
		return err
	}

	payload, err := cur.Serialize()
	if err != nil {
		return err
	}
	encoded := hex.EncodeToString(payload)

	if *outFile == "" {
		fmt.Fprintln(stdout, encoded)
		return nil
	}
	return atomic.WriteFile(*outFile, bytes.NewReader([]byte(encoded)))
}
