// Command cstone-shell is a small interactive demonstration of the cstone
// library: it mounts a property database, a flash-backed block log, and a
// cron scheduler over an in-memory storage device, and exposes a handful of
// commands to poke at them from the terminal. It is not a production
// console — just enough wiring to exercise the library end to end.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cstone "github.com/kevinpt/cstone-sub000"
	"github.com/kevinpt/cstone-sub000/compress"
	"github.com/kevinpt/cstone-sub000/cron"
	"github.com/kevinpt/cstone-sub000/internal/logging"
	"github.com/kevinpt/cstone-sub000/logdb"
	"github.com/kevinpt/cstone-sub000/propdb"
	"github.com/kevinpt/cstone-sub000/propid"
	"github.com/kevinpt/cstone-sub000/umsg"
)

func main() {
	var sectorSize int
	var numSectors int
	var configPath string

	pflag.IntVar(&sectorSize, "sector-size", 4096, "simulated flash sector size in bytes")
	pflag.IntVar(&numSectors, "sectors", 16, "number of simulated flash sectors")
	pflag.StringVar(&configPath, "config", "", "optional config file (yaml/json/toml) of shell defaults")
	pflag.Parse()

	v := viper.New()
	v.SetDefault("sector_size", sectorSize)
	v.SetDefault("sectors", numSectors)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "cstone-shell: reading config: %v\n", err)
			os.Exit(1)
		}
	}

	log := logging.Default()
	hub := umsg.NewHub()
	db := propdb.New(propdb.Config{Hub: hub, Logger: log})

	storage := logdb.NewMemoryStorage(v.GetInt("sector_size"), v.GetInt("sectors"))
	log_, err := logdb.Mount(storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cstone-shell: mount: %v\n", err)
		os.Exit(1)
	}

	sched := cron.NewScheduler(hub, propid.AuxByte8_16(0, 0))
	metrics := cstone.NewMetrics()

	codec := compress.NewSnappyCodec()
	restored, err := cstone.RestoreProperties(db, log_, codec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cstone-shell: restore properties: %v\n", err)
		os.Exit(1)
	}
	if restored > 0 {
		fmt.Printf("cstone-shell: restored %d properties from log\n", restored)
	}

	persister := cstone.NewPropertyPersister(cstone.PersistConfig{
		Hub:      hub,
		DB:       db,
		Log:      log_,
		Codec:    codec,
		Observer: metrics,
		Logger:   log,
	})
	persister.Start()
	defer persister.Stop()

	fmt.Println("cstone-shell: type 'help' for commands, 'quit' to exit")
	repl(os.Stdin, db, log_, sched, metrics, persister)
}

func repl(in *os.File, db *propdb.DB, ldb *logdb.LogDB, sched *cron.Scheduler, metrics *cstone.Metrics, persister *cstone.PropertyPersister) {
	scanner := bufio.NewScanner(in)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		fields := strings.Fields(line)
		cmd := fields[0]
		args := fields[1:]

		switch cmd {
		case "quit", "exit":
			if err := persister.Snapshot(); err != nil {
				fmt.Println("snapshot on exit failed:", err)
			}
			return
		case "help":
			printHelp()
		case "set":
			runSet(db, args)
		case "get":
			runGet(db, args)
		case "append":
			runAppend(ldb, metrics, args)
		case "log":
			runLog(ldb)
		case "schedule":
			runSchedule(sched, args)
		case "dispatch":
			runDispatch(sched, metrics, args)
		case "stats":
			runStats(metrics)
		case "snapshot":
			if err := persister.Snapshot(); err != nil {
				fmt.Println("snapshot failed:", err)
			}
		default:
			fmt.Printf("unknown command %q (try 'help')\n", cmd)
		}
		fmt.Print("> ")
	}
}

func printHelp() {
	fmt.Println(`commands:
  set <prop-id> <uint-value>     set a property
  get <prop-id>                  read a property
  append <text>                  append text as a block to the log
  log                            dump every block currently in the log
  schedule <crontab> <event-id>  add a recurring schedule entry
  dispatch <rfc3339> <rfc3339>   replay scheduler minutes between two times
  stats                          print metrics snapshot
  snapshot                       force an immediate property snapshot to the log
  quit`)
}

func runSet(db *propdb.DB, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: set <prop-id> <uint-value>")
		return
	}
	prop, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		fmt.Println("bad property id:", err)
		return
	}
	val, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		fmt.Println("bad value:", err)
		return
	}
	if err := db.SetUint(uint32(prop), uint32(val), 0); err != nil {
		fmt.Println("set failed:", err)
	}
}

func runGet(db *propdb.DB, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <prop-id>")
		return
	}
	prop, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		fmt.Println("bad property id:", err)
		return
	}
	entry, ok := db.Get(uint32(prop))
	if !ok {
		fmt.Println("(not set)")
		return
	}
	fmt.Printf("%+v\n", entry)
}

func runAppend(ldb *logdb.LogDB, metrics *cstone.Metrics, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: append <text>")
		return
	}
	data := []byte(strings.Join(args, " "))
	start := time.Now()
	err := ldb.Append(logdb.BlockKindUser, data, false)
	metrics.ObserveAppend(uint64(len(data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		fmt.Println("append failed:", err)
	}
}

func runLog(ldb *logdb.LogDB) {
	ldb.ReadIterInit()
	for !ldb.AtEnd() {
		blk, err := ldb.ReadNext()
		if err != nil {
			fmt.Println("read failed:", err)
			return
		}
		fmt.Printf("[kind=%d] %s\n", blk.Kind, string(blk.Data))
	}
}

func runSchedule(sched *cron.Scheduler, args []string) {
	if len(args) != 6 {
		fmt.Println("usage: schedule <minute> <hour> <day-of-month> <month> <day-of-week> <event-id>")
		return
	}
	event, err := strconv.ParseUint(args[5], 0, 32)
	if err != nil {
		fmt.Println("bad event id:", err)
		return
	}
	if err := sched.AddEventBySchedule(strings.Join(args[:5], " "), uint32(event), 0, 0, 0); err != nil {
		fmt.Println("schedule failed:", err)
	}
}

func runDispatch(sched *cron.Scheduler, metrics *cstone.Metrics, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: dispatch <rfc3339-from> <rfc3339-until>")
		return
	}
	from, err := time.Parse(time.RFC3339, args[0])
	if err != nil {
		fmt.Println("bad 'from' time:", err)
		return
	}
	until, err := time.Parse(time.RFC3339, args[1])
	if err != nil {
		fmt.Println("bad 'until' time:", err)
		return
	}
	sched.Dispatch(from, until)
	metrics.ObserveDispatch(uint32(len(sched.Entries())))
}

func runStats(metrics *cstone.Metrics) {
	snap := metrics.Snapshot()
	fmt.Printf("%+v\n", snap)
}
